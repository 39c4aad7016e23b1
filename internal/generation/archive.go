package generation

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/pkg/zip"
)

// Archive downloads every artifact a record references and zips them as
// original.*, generated.* and composite.png. Unreachable artifacts are
// skipped; it fails only when none could be fetched.
func (o *Orchestrator) Archive(ctx context.Context, recordID string) ([]byte, *domain.GenerationRecord, error) {
	rec, err := o.artifacts.GetRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	type entry struct {
		name string
		url  string
	}
	entries := []entry{
		{name: "original", url: rec.OriginalImageURL},
		{name: "generated", url: domain.Deref(rec.GeneratedImageURL)},
		{name: "composite", url: domain.Deref(rec.CompositeImageURL)},
	}
	assets := make([]zip.Asset, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.url) == "" {
			continue
		}
		g.Go(func() error {
			data, contentType, err := o.fetcher.Fetch(gctx, e.url)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				o.logger.Warn().Err(err).Str("record_id", recordID).Str("url", e.url).Msg("archive entry skipped")
				return nil
			}
			assets[i] = zip.Asset{Filename: e.name + artifactExt(e.url, contentType), MIME: contentType, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	found := 0
	for _, a := range assets {
		if len(a.Data) > 0 {
			found++
		}
	}
	if found == 0 {
		return nil, rec, domain.NewError(domain.KindNotFound, domain.CodeObjectNotFound, "no artifact of this generation is reachable", nil)
	}
	raw, err := zip.ArchiveAssets(assets, rec.UpdatedAt)
	if err != nil {
		return nil, rec, err
	}
	return raw, rec, nil
}

func artifactExt(rawURL, contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/png":
			return ".png"
		case "image/jpeg":
			return ".jpg"
		case "image/webp":
			return ".webp"
		}
	}
	if ext := strings.ToLower(path.Ext(strings.SplitN(rawURL, "?", 2)[0])); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".bin"
}
