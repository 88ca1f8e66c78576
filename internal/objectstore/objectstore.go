// Package objectstore keeps audio blobs addressed by slash-separated keys.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/peterbourgon/diskv/v3"
)

// AudioContentType is the only content type accepted for recordings.
const AudioContentType = "audio/webm"

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Blobs uploads and serves audio objects.
type Blobs interface {
	// Put stores data under key and returns the public URL of the object.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// AudioKey builds the object key for an entry recording: {userId}/{entryId}/{unixMillis}.webm.
func AudioKey(userID, entryID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d.webm", userID, entryID, at.UnixMilli())
}

// Owner returns the user id prefix of a key.
func Owner(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}

func validateKey(key string) error {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return ErrInvalidKey
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// Disk stores objects under a base directory with diskv.
type Disk struct {
	d       *diskv.Diskv
	baseURL string
}

// NewDisk opens a disk-backed store. publicBaseURL prefixes the /api/audio/ path of returned URLs.
func NewDisk(basePath, publicBaseURL string) *Disk {
	return &Disk{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			AdvancedTransform: keyToPath,
			InverseTransform:  pathToKey,
			CacheSizeMax:      8 * 1024 * 1024,
		}),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

func keyToPath(key string) *diskv.PathKey {
	parts := strings.Split(key, "/")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKey(pk *diskv.PathKey) string {
	return strings.Join(append(append([]string{}, pk.Path...), pk.FileName), "/")
}

func (s *Disk) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	if contentType != AudioContentType {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
	if err := s.d.Write(key, data); err != nil {
		return "", fmt.Errorf("write object %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *Disk) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	b, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// URL is where the API serves key.
func (s *Disk) URL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/api/audio/" + strings.Join(segs, "/")
}

// Keys lists stored keys, used by tests and maintenance commands.
func (s *Disk) Keys(ctx context.Context) []string {
	var out []string
	for k := range s.d.Keys(ctx.Done()) {
		out = append(out, k)
	}
	return out
}
