// Package artifact abstracts the object store holding uploaded scans and
// produced outputs. Artifacts are immutable blobs addressed by opaque keys.
package artifact

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a key does not exist in the store
	ErrNotFound = errors.New("artifact not found")

	// ErrSigningUnsupported is returned by stores that cannot issue
	// presigned URLs (e.g. the local filesystem store)
	ErrSigningUnsupported = errors.New("presigned URLs not supported by this store")
)

// SignedUpload is a direct-upload credential issued to a client.
type SignedUpload struct {
	URL     string
	Method  string
	Headers map[string]string
}

// Store is the artifact store contract shared by the API and the worker.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*SignedUpload, error)
	SignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// UploadKey builds the store key for a client upload:
// <folder>/<uuidhex>_<filename>. The nonce keeps concurrent uploads of the
// same filename from colliding.
func UploadKey(folder, filename string) string {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.Trim(folder, "/") + "/" + nonce + "_" + filename
}

// OutputKey builds the deterministic store key for a produced artifact:
// <prefix>/<job_id>/<name>.
func OutputKey(prefix, jobID, name string) string {
	return strings.Trim(prefix, "/") + "/" + jobID + "/" + name
}

// Output artifact filenames.
const (
	ProstheticFile = "prosthetic.stl"
	MoldFile       = "mold.stl"
)
