package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, ttl)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, st := newRedisStore(t, time.Hour)

	_, err := st.Get(ctx, 10)
	assert.ErrorIs(t, err, ErrNoState)

	want := State{Flow: FlowDirectMessage, Step: AwaitingMessage, TargetUserID: 99}
	require.NoError(t, st.Set(ctx, 10, want))

	got, err := st.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, want.Flow, got.Flow)
	assert.Equal(t, want.TargetUserID, got.TargetUserID)

	require.NoError(t, st.Clear(ctx, 10))
	_, err = st.Get(ctx, 10)
	assert.ErrorIs(t, err, ErrNoState)
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t, 24*time.Hour)

	require.NoError(t, st.Set(ctx, 3, State{Flow: FlowSubmission, Step: AwaitingText}))
	assert.Equal(t, 24*time.Hour, mr.TTL(redisKey(3)))

	mr.FastForward(25 * time.Hour)
	_, err := st.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrNoState)
}

func TestRedisStoreDropsCorruptValue(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t, time.Hour)

	require.NoError(t, mr.Set(redisKey(4), "{not json"))
	_, err := st.Get(ctx, 4)
	assert.ErrorIs(t, err, ErrNoState)
	assert.False(t, mr.Exists(redisKey(4)))
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = DialRedis("not a url")
	assert.Error(t, err)
}
