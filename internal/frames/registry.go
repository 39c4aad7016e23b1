// Package frames holds the fixed table of frame presets consulted by the
// compositor and by prompt resolution.
package frames

import (
	"embed"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

//go:embed frames.yaml
var defaultConfig []byte

//go:embed assets/*.png
var defaultAssets embed.FS

// Descriptor is one immutable frame preset.
type Descriptor struct {
	Type          domain.FrameType
	CanvasWidth   int
	CanvasHeight  int
	PortraitScale float64
	// CaptionBias shifts the portrait up by this many pixels to keep the
	// bottom caption band clear.
	CaptionBias int
	Background  color.Color
	Overlay     string
	Prompt      string
}

// TargetBox returns the box the portrait must fit inside.
func (d Descriptor) TargetBox() (int, int) {
	w := int(math.Round(float64(d.CanvasWidth) * d.PortraitScale))
	h := int(math.Round(float64(d.CanvasHeight) * d.PortraitScale))
	return w, h
}

// Registry resolves frame presets and their overlay assets.
type Registry struct {
	frames map[domain.FrameType]Descriptor
	order  []domain.FrameType
	assets fs.FS
}

// Options overrides the built-in table and artwork.
type Options struct {
	ConfigPath string
	AssetsDir  string
}

type fileConfig struct {
	Frames []struct {
		Type          string  `yaml:"type"`
		CanvasWidth   int     `yaml:"canvas_width"`
		CanvasHeight  int     `yaml:"canvas_height"`
		PortraitScale float64 `yaml:"portrait_scale"`
		CaptionBias   int     `yaml:"caption_bias"`
		Background    string  `yaml:"background"`
		Overlay       string  `yaml:"overlay"`
		Prompt        string  `yaml:"prompt"`
	} `yaml:"frames"`
}

// Default returns the registry built from the embedded table and artwork.
func Default() (*Registry, error) {
	return New(Options{})
}

// New loads the table once. Empty options fall back to the embedded defaults.
func New(opts Options) (*Registry, error) {
	raw := defaultConfig
	if p := strings.TrimSpace(opts.ConfigPath); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("frames: read config: %w", err)
		}
		raw = data
	}
	var assets fs.FS
	if dir := strings.TrimSpace(opts.AssetsDir); dir != "" {
		assets = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(defaultAssets, "assets")
		if err != nil {
			return nil, fmt.Errorf("frames: embedded assets: %w", err)
		}
		assets = sub
	}
	return Parse(raw, assets)
}

// Parse decodes a YAML table and binds it to the given asset filesystem.
func Parse(raw []byte, assets fs.FS) (*Registry, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("frames: decode config: %w", err)
	}
	descs := make([]Descriptor, 0, len(cfg.Frames))
	for _, f := range cfg.Frames {
		ft, err := domain.ParseFrameType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("frames: %w", err)
		}
		bg, err := parseHexColor(f.Background)
		if err != nil {
			return nil, fmt.Errorf("frames: %s background: %w", ft, err)
		}
		descs = append(descs, Descriptor{
			Type:          ft,
			CanvasWidth:   f.CanvasWidth,
			CanvasHeight:  f.CanvasHeight,
			PortraitScale: f.PortraitScale,
			CaptionBias:   f.CaptionBias,
			Background:    bg,
			Overlay:       strings.TrimSpace(f.Overlay),
			Prompt:        strings.Join(strings.Fields(f.Prompt), " "),
		})
	}
	return NewRegistry(descs, assets)
}

// NewRegistry validates descriptors and builds an immutable registry.
func NewRegistry(descs []Descriptor, assets fs.FS) (*Registry, error) {
	if assets == nil {
		return nil, errors.New("frames: asset filesystem is required")
	}
	r := &Registry{frames: make(map[domain.FrameType]Descriptor, len(descs)), assets: assets}
	for _, d := range descs {
		if _, dup := r.frames[d.Type]; dup {
			return nil, fmt.Errorf("frames: duplicate frame %q", d.Type)
		}
		if d.CanvasWidth <= 0 || d.CanvasHeight <= 0 {
			return nil, fmt.Errorf("frames: %s canvas must be positive", d.Type)
		}
		if d.PortraitScale <= 0 || d.PortraitScale > 1 {
			return nil, fmt.Errorf("frames: %s portrait scale must be in (0,1]", d.Type)
		}
		if d.CaptionBias < 0 || d.CaptionBias >= d.CanvasHeight {
			return nil, fmt.Errorf("frames: %s caption bias out of range", d.Type)
		}
		if d.Overlay == "" {
			d.Overlay = string(d.Type) + ".png"
		}
		if strings.TrimSpace(d.Prompt) == "" {
			return nil, fmt.Errorf("frames: %s prompt is required", d.Type)
		}
		r.frames[d.Type] = d
		r.order = append(r.order, d.Type)
	}
	return r, nil
}

// Lookup returns the preset for a frame type.
func (r *Registry) Lookup(ft domain.FrameType) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.frames[ft]
	return d, ok
}

// Types lists configured frame types in table order.
func (r *Registry) Types() []domain.FrameType {
	if r == nil {
		return nil
	}
	return append([]domain.FrameType(nil), r.order...)
}

// Prompt resolves the fixed inference instruction for a frame.
func (r *Registry) Prompt(ft domain.FrameType) (string, error) {
	d, ok := r.Lookup(ft)
	if !ok {
		return "", domain.NewError(domain.KindInvalidInput, domain.CodeUnknownFrame, fmt.Sprintf("unknown frame %q", ft), nil)
	}
	return d.Prompt, nil
}

// Overlay reads the raw overlay artwork for a frame.
func (r *Registry) Overlay(ft domain.FrameType) ([]byte, error) {
	d, ok := r.Lookup(ft)
	if !ok {
		return nil, domain.NewError(domain.KindInvalidInput, domain.CodeUnknownFrame, fmt.Sprintf("unknown frame %q", ft), nil)
	}
	data, err := fs.ReadFile(r.assets, path.Clean(d.Overlay))
	if err != nil {
		return nil, domain.NewError(domain.KindProcessing, domain.CodeAssetMissing, fmt.Sprintf("frame file not found: %s", d.Overlay), err)
	}
	return data, nil
}

func parseHexColor(raw string) (color.Color, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if s == "" {
		return nil, nil
	}
	if len(s) != 6 && len(s) != 8 {
		return nil, fmt.Errorf("invalid color %q", raw)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q", raw)
	}
	if len(s) == 6 {
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
