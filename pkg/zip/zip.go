package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets writes assets into one zip in order. Duplicate names get a
// numeric suffix; empty assets are skipped.
func ArchiveAssets(assets []Asset, modified time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := map[string]int{}
	for _, asset := range assets {
		if len(asset.Data) == 0 {
			continue
		}
		name := uniqueName(seen, asset.Filename)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method(asset.MIME), Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(seen map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "asset"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

// method stores already-compressed images as is.
func method(mime string) uint16 {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"), strings.HasPrefix(mime, "image/png"), strings.HasPrefix(mime, "image/webp"):
		return zip.Store
	default:
		return zip.Deflate
	}
}
