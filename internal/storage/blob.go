package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

// AnonymousScope partitions uploads that carry no owner.
const AnonymousScope = "anonymous"

// Object identifies a stored blob.
type Object struct {
	Key string
	URL string
}

// BlobStore is a write-once object store. Put never overwrites an existing key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

// NewKey builds "<owner|anonymous>/<unix-millis>-<uuid>.<ext>".
func NewKey(ownerScope, suggestedName, contentType string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s.%s", scopeSegment(ownerScope), now.UnixMilli(), uuid.NewString(), extension(suggestedName, contentType))
}

func scopeSegment(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return AnonymousScope
	}
	var b strings.Builder
	for _, r := range owner {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var preferredExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

func extension(name, contentType string) string {
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), ".")); ext != "" && isAlnum(ext) {
		if ext == "jpeg" {
			return "jpg"
		}
		return ext
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}
	return "bin"
}

func isAlnum(s string) bool {
	if len(s) > 8 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func conflictError(key string, cause error) error {
	return domain.NewError(domain.KindConflict, domain.CodeStorageConflict, "storage key already exists: "+key, cause)
}

func notFoundError(key string, cause error) error {
	return domain.NewError(domain.KindNotFound, domain.CodeObjectNotFound, "storage object not found: "+key, cause)
}

func unavailableError(message string, cause error) error {
	return domain.NewError(domain.KindStorage, domain.CodeStorageUnavailable, message, cause)
}
