// Package media keeps an archived copy of submitted photos outside the chat
// platform, so the original stays reachable if the bot token changes.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

type Archive interface {
	// Store uploads data and returns its public URL.
	Store(ctx context.Context, data []byte) (string, error)
	// Remove deletes a previously stored copy by URL.
	Remove(ctx context.Context, url string) error
}

// Uploader is the part of the Cloudinary upload API the archive needs.
type Uploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

type CloudinaryArchive struct {
	up     Uploader
	folder string
}

// NewCloudinary builds an archive from a cloudinary:// URL.
func NewCloudinary(cloudinaryURL, folder string) (*CloudinaryArchive, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return NewCloudinaryWith(&cld.Upload, folder), nil
}

func NewCloudinaryWith(up Uploader, folder string) *CloudinaryArchive {
	return &CloudinaryArchive{up: up, folder: folder}
}

func (a *CloudinaryArchive) Store(ctx context.Context, data []byte) (string, error) {
	resp, err := a.up.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:    a.folder,
		PublicID:  uuid.NewString(),
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	return resp.SecureURL, nil
}

func (a *CloudinaryArchive) Remove(ctx context.Context, photoURL string) error {
	publicID, err := publicIDFromURL(photoURL)
	if err != nil {
		return fmt.Errorf("failed to extract public ID: %w", err)
	}

	if _, err := a.up.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("failed to delete photo from Cloudinary: %w", err)
	}
	return nil
}

// publicIDFromURL turns .../upload/v123/reviews/abc.jpg into reviews/abc.
func publicIDFromURL(photoURL string) (string, error) {
	parsed, err := url.Parse(photoURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	parts := strings.Split(parsed.Path, "/")
	for i, part := range parts {
		if part != "upload" || i+1 >= len(parts) {
			continue
		}
		rest := parts[i+1:]
		if len(rest) > 1 && len(rest[0]) > 1 && rest[0][0] == 'v' && isDigits(rest[0][1:]) {
			rest = rest[1:]
		}
		id := strings.Join(rest, "/")
		if dot := strings.LastIndex(id, "."); dot > strings.LastIndex(id, "/") {
			id = id[:dot]
		}
		if id == "" {
			break
		}
		return id, nil
	}
	return "", errors.New("failed to extract public ID from URL")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// NopArchive is used when no archive is configured.
type NopArchive struct{}

func (NopArchive) Store(context.Context, []byte) (string, error) { return "", nil }
func (NopArchive) Remove(context.Context, string) error          { return nil }
