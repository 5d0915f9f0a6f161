// Package preview produces the degraded copies of submitted photos that are
// shown before moderation and to other users.
package preview

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// DefaultSigma is strong enough to hide faces and text on phone-sized photos.
const DefaultSigma = 15

// Blur decodes an image, applies a Gaussian blur and re-encodes it as JPEG.
func Blur(r io.Reader, sigma float64) ([]byte, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}

	blurred := imaging.Blur(src, sigma)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blurred, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode blurred photo: %w", err)
	}
	return buf.Bytes(), nil
}
