package flows

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"reviewbot/internal/catalog"
	"reviewbot/internal/conversation"
	"reviewbot/internal/domain/activity"
	"reviewbot/internal/domain/broadcasts"
	"reviewbot/internal/domain/reviews"
	"reviewbot/internal/domain/stats"
	"reviewbot/internal/domain/storage"
	"reviewbot/internal/domain/templates"
	"reviewbot/internal/domain/users"
	"reviewbot/internal/messenger/messengertest"
	"reviewbot/internal/metrics"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID int64 = 1000

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[int64]*users.User
	counts map[int64]users.ReviewCounts
	err    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*users.User{}, counts: map[int64]users.ReviewCounts{}}
}

func (f *fakeUsers) Upsert(_ context.Context, u *users.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	now := time.Now()
	if existing, ok := f.byID[u.ID]; ok {
		existing.Username, existing.FirstName, existing.LastName = u.Username, u.FirstName, u.LastName
		existing.LastActivityAt, existing.IsActive = now, true
		return nil
	}
	c := *u
	c.CreatedAt, c.LastActivityAt, c.IsActive = now, now, true
	f.byID[u.ID] = &c
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) sortedIDs() []int64 {
	ids := make([]int64, 0, len(f.byID))
	for id := range f.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeUsers) ListIDs(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sortedIDs(), nil
}

func (f *fakeUsers) List(_ context.Context, search string, limit, offset int) ([]users.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	search = strings.ToLower(search)
	var all []users.User
	for _, id := range f.sortedIDs() {
		u := f.byID[id]
		if search == "" ||
			strings.Contains(strings.ToLower(u.Username), search) ||
			strings.Contains(strings.ToLower(u.FirstName), search) ||
			strconv.FormatInt(u.ID, 10) == search {
			all = append(all, *u)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (f *fakeUsers) SetActive(_ context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		u.IsActive = active
	}
	return nil
}

func (f *fakeUsers) ReviewCounts(_ context.Context, id int64) (*users.ReviewCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.counts[id]
	return &c, nil
}

func (f *fakeUsers) active(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	return ok && u.IsActive
}

type fakeReviews struct {
	mu        sync.Mutex
	byID      map[int64]*reviews.Review
	nextID    int64
	createErr error
	statusErr error
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{byID: map[int64]*reviews.Review{}}
}

func (f *fakeReviews) Create(_ context.Context, r *reviews.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if r.Status == "" {
		r.Status = reviews.StatusPending
	}
	if err := r.Validate(); err != nil {
		return err
	}
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now()
	c := *r
	f.byID[r.ID] = &c
	return nil
}

func (f *fakeReviews) GetByID(_ context.Context, id int64) (*reviews.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, reviews.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeReviews) SetStatus(_ context.Context, id int64, status reviews.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	r, ok := f.byID[id]
	if !ok || r.Status != reviews.StatusPending {
		return reviews.ErrNotFound
	}
	r.Status = status
	return nil
}

func (f *fakeReviews) update(id int64, fn func(r *reviews.Review)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return reviews.ErrNotFound
	}
	fn(r)
	return nil
}

func (f *fakeReviews) SetBlurredPhoto(_ context.Context, id int64, blurredID string) error {
	return f.update(id, func(r *reviews.Review) { r.BlurredPhotoID = blurredID })
}

func (f *fakeReviews) SetPhoto(_ context.Context, id int64, photoID, blurredID string) error {
	return f.update(id, func(r *reviews.Review) {
		r.PhotoID, r.BlurredPhotoID, r.PhotoURL = photoID, blurredID, ""
	})
}

func (f *fakeReviews) SetArchivedURL(_ context.Context, id int64, url string) error {
	return f.update(id, func(r *reviews.Review) { r.PhotoURL = url })
}

func (f *fakeReviews) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

func (f *fakeReviews) DeleteAll(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.byID))
	f.byID = map[int64]*reviews.Review{}
	return n, nil
}

func (f *fakeReviews) approved() []reviews.Review {
	var out []reviews.Review
	for _, r := range f.byID {
		if r.Status == reviews.StatusApproved {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeReviews) ListApproved(_ context.Context, offset, limit int) ([]reviews.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.approved()
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (f *fakeReviews) CountApproved(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.approved()), nil
}

func (f *fakeReviews) all() []reviews.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reviews.Review, 0, len(f.byID))
	for _, r := range f.byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeReviews) put(r reviews.Review) *reviews.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		f.nextID++
		r.ID = f.nextID
	} else if r.ID > f.nextID {
		f.nextID = r.ID
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	}
	f.byID[r.ID] = &r
	return &r
}

type fakeTemplates struct {
	mu     sync.Mutex
	byID   map[int64]*templates.Template
	nextID int64
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{byID: map[int64]*templates.Template{}}
}

func (f *fakeTemplates) Upsert(_ context.Context, name, text string) (*templates.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.Name == name {
			t.Text = text
			c := *t
			return &c, nil
		}
	}
	f.nextID++
	t := &templates.Template{ID: f.nextID, Name: name, Text: text}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	f.byID[t.ID] = t
	c := *t
	return &c, nil
}

func (f *fakeTemplates) GetByID(_ context.Context, id int64) (*templates.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok {
		return nil, templates.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTemplates) GetByName(_ context.Context, name string) (*templates.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, templates.ErrNotFound
}

func (f *fakeTemplates) List(context.Context) ([]templates.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]templates.Template, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type logged struct {
	UserID int64
	Action activity.Action
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []logged
	err     error
}

func (f *fakeActivity) Log(_ context.Context, userID int64, action activity.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, logged{userID, action})
	return nil
}

func (f *fakeActivity) actions() []activity.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]activity.Action, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

type fakeStats struct {
	overview stats.Overview
	byStatus map[reviews.Status]int64
	ratings  map[int]int64
	calls    int
}

func (f *fakeStats) GetOverview(context.Context) (*stats.Overview, error) {
	f.calls++
	o := f.overview
	return &o, nil
}

func (f *fakeStats) RatingDistribution(context.Context) (map[int]int64, error) {
	return f.ratings, nil
}

func (f *fakeStats) ByStatus(context.Context) (map[reviews.Status]int64, error) {
	return f.byStatus, nil
}

type fakeBroadcasts struct {
	mu   sync.Mutex
	runs []broadcasts.Run
}

func (f *fakeBroadcasts) Record(_ context.Context, run *broadcasts.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeBroadcasts) ListRecent(_ context.Context, limit int) ([]broadcasts.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[:min(limit, len(f.runs))], nil
}

type fakeArchive struct {
	mu      sync.Mutex
	stored  int
	removed []string
	err     error
}

func (f *fakeArchive) Store(context.Context, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.stored++
	return "https://res.cloudinary.com/demo/image/upload/v1/reviews/photo-" + strconv.Itoa(f.stored) + ".jpg", nil
}

func (f *fakeArchive) Remove(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
	return nil
}

type harness struct {
	svc        *Service
	msg        *messengertest.Recorder
	states     *conversation.MemoryStore
	users      *fakeUsers
	reviews    *fakeReviews
	templates  *fakeTemplates
	activity   *fakeActivity
	stats      *fakeStats
	broadcasts *fakeBroadcasts
	archive    *fakeArchive
	metrics    *metrics.Metrics
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		msg:        messengertest.New(),
		states:     conversation.NewMemoryStore(time.Hour),
		users:      newFakeUsers(),
		reviews:    newFakeReviews(),
		templates:  newFakeTemplates(),
		activity:   &fakeActivity{},
		stats:      &fakeStats{},
		broadcasts: &fakeBroadcasts{},
		archive:    &fakeArchive{},
		metrics:    metrics.New(),
	}
	cfg := Config{AdminID: adminID}
	for _, o := range opts {
		o(&cfg)
	}

	store := storage.NewDirect(storage.Container{
		Users:      h.users,
		Reviews:    h.reviews,
		Templates:  h.templates,
		Activity:   h.activity,
		Stats:      h.stats,
		Broadcasts: h.broadcasts,
	})
	h.svc = New(Deps{
		Store:     store,
		Messenger: h.msg,
		Catalog:   catalog.Default(),
		States:    h.states,
		Archive:   h.archive,
		Logger:    zap.NewNop().Sugar(),
		Metrics:   h.metrics,
	}, cfg)
	h.svc.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	h.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	return h
}

func withoutAdmin(c *Config) { c.AdminID = 0 }

func customer(id int64) users.User {
	return users.User{ID: id, Username: "user" + strconv.FormatInt(id, 10), FirstName: "Name"}
}

func operator() users.User {
	return users.User{ID: adminID, Username: "admin"}
}

func (h *harness) state(t *testing.T, chatID int64) (conversation.State, bool) {
	t.Helper()
	st, ok, err := conversation.Lookup(context.Background(), h.states, chatID)
	require.NoError(t, err)
	return st, ok
}

// jpegBytes returns a small valid JPEG.
func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for x := 0; x < 32; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

var errBoom = errors.New("boom")
