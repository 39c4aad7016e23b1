// Package compositor flattens a generated portrait and a frame overlay into
// the final deliverable PNG.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	// Registered decoders for portraits.
	_ "image/gif"
	_ "image/jpeg"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
	"github.com/yazidnurfadil/mosque-hero/internal/frames"
)

const overlayCacheSize = 16

// DefaultMaxPortraitPixels caps decoded portraits at 8192x8192.
const DefaultMaxPortraitPixels = 8192 * 8192

// Compositor is safe for concurrent use.
type Compositor struct {
	// MaxPixels bounds width*height of accepted portraits; zero selects
	// DefaultMaxPortraitPixels.
	MaxPixels int

	frames   *frames.Registry
	overlays *lru.Cache[domain.FrameType, *image.NRGBA]
	encoder  png.Encoder
}

// New builds a compositor bound to a frame registry.
func New(reg *frames.Registry) (*Compositor, error) {
	if reg == nil {
		return nil, fmt.Errorf("compositor: frame registry is required")
	}
	cache, err := lru.New[domain.FrameType, *image.NRGBA](overlayCacheSize)
	if err != nil {
		return nil, fmt.Errorf("compositor: overlay cache: %w", err)
	}
	return &Compositor{
		frames:   reg,
		overlays: cache,
		encoder:  png.Encoder{CompressionLevel: png.DefaultCompression},
	}, nil
}

// Compose places the portrait on the frame canvas and returns PNG bytes.
func (c *Compositor) Compose(ctx context.Context, portrait []byte, ft domain.FrameType) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc, ok := c.frames.Lookup(ft)
	if !ok {
		return nil, domain.NewError(domain.KindInvalidInput, domain.CodeUnknownFrame, fmt.Sprintf("unknown frame %q", ft), nil)
	}
	overlay, err := c.overlay(desc)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(portrait))
	if err != nil {
		return nil, domain.NewError(domain.KindProcessing, domain.CodeDecodeError, "portrait is not a readable image", err)
	}
	if err := c.checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(portrait))
	if err != nil {
		return nil, domain.NewError(domain.KindProcessing, domain.CodeDecodeError, "portrait is not a readable image", err)
	}

	layout := ComputeLayout(desc, src.Bounds().Dx(), src.Bounds().Dy())
	canvas := Render(desc, src, overlay, layout)

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, canvas); err != nil {
		return nil, domain.NewError(domain.KindProcessing, domain.CodeEncodeError, "encode composite", err)
	}
	return buf.Bytes(), nil
}

func (c *Compositor) checkDimensions(w, h int) error {
	limit := c.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPortraitPixels
	}
	if w <= 0 || h <= 0 || w > limit/h {
		return domain.NewError(domain.KindInvalidInput, domain.CodeImageTooLarge,
			fmt.Sprintf("portrait %dx%d exceeds %d pixels", w, h, limit), nil)
	}
	return nil
}

// Render draws background, portrait and overlay in that order.
func Render(desc frames.Descriptor, portrait image.Image, overlay image.Image, layout Layout) *image.NRGBA {
	bounds := image.Rect(0, 0, layout.CanvasWidth, layout.CanvasHeight)
	canvas := image.NewNRGBA(bounds)
	if desc.Background != nil {
		draw.Draw(canvas, bounds, image.NewUniform(desc.Background), image.Point{}, draw.Src)
	}
	if portrait != nil && layout.Width > 0 && layout.Height > 0 {
		dst := image.Rect(layout.OffsetX, layout.OffsetY, layout.OffsetX+layout.Width, layout.OffsetY+layout.Height)
		sb := portrait.Bounds()
		if sb.Dx() == layout.Width && sb.Dy() == layout.Height {
			draw.Draw(canvas, dst, portrait, sb.Min, draw.Over)
		} else {
			draw.CatmullRom.Scale(canvas, dst, portrait, sb, draw.Over, nil)
		}
	}
	if overlay != nil {
		draw.Draw(canvas, bounds, overlay, overlay.Bounds().Min, draw.Over)
	}
	return canvas
}

func (c *Compositor) overlay(desc frames.Descriptor) (*image.NRGBA, error) {
	if cached, ok := c.overlays.Get(desc.Type); ok {
		return cached, nil
	}
	raw, err := c.frames.Overlay(desc.Type)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, domain.NewError(domain.KindProcessing, domain.CodeAssetMissing, fmt.Sprintf("frame file unreadable: %s", desc.Overlay), err)
	}
	target := image.Rect(0, 0, desc.CanvasWidth, desc.CanvasHeight)
	rasterized := image.NewNRGBA(target)
	if img.Bounds().Dx() == desc.CanvasWidth && img.Bounds().Dy() == desc.CanvasHeight {
		draw.Draw(rasterized, target, img, img.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(rasterized, target, img, img.Bounds(), draw.Src, nil)
	}
	c.overlays.Add(desc.Type, rasterized)
	return rasterized, nil
}
