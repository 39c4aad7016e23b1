package frames

import (
	"errors"
	"image/color"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/yazidnurfadil/mosque-hero/internal/domain"
)

func TestDefaultRegistryHasBothPresets(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	require.Equal(t, []domain.FrameType{domain.FrameIkhwan, domain.FrameAkhwat}, reg.Types())

	for _, ft := range domain.FrameTypes {
		d, ok := reg.Lookup(ft)
		require.True(t, ok, "frame %s missing", ft)
		require.Equal(t, 800, d.CanvasWidth)
		require.Equal(t, 800, d.CanvasHeight)
		w, h := d.TargetBox()
		require.Equal(t, 680, w)
		require.Equal(t, 680, h)

		prompt, err := reg.Prompt(ft)
		require.NoError(t, err)
		require.NotEmpty(t, prompt)

		overlay, err := reg.Overlay(ft)
		require.NoError(t, err)
		require.NotEmpty(t, overlay)
	}

	akhwat, _ := reg.Lookup(domain.FrameAkhwat)
	require.Equal(t, color.NRGBA{R: 0xF7, G: 0xE8, B: 0xF0, A: 0xff}, akhwat.Background)
	ikhwan, _ := reg.Lookup(domain.FrameIkhwan)
	require.Nil(t, ikhwan.Background)
}

func TestParseRejectsUnknownFrameType(t *testing.T) {
	raw := []byte(`
frames:
  - type: superman
    canvas_width: 800
    canvas_height: 800
    portrait_scale: 0.85
    prompt: hero
`)
	_, err := Parse(raw, fstest.MapFS{})
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvalidFrameType))
}

func TestParseValidatesGeometry(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "zero canvas", raw: "frames:\n  - {type: ikhwan, canvas_width: 0, canvas_height: 800, portrait_scale: 0.5, prompt: p}\n"},
		{name: "scale above one", raw: "frames:\n  - {type: ikhwan, canvas_width: 800, canvas_height: 800, portrait_scale: 1.5, prompt: p}\n"},
		{name: "bias too large", raw: "frames:\n  - {type: ikhwan, canvas_width: 800, canvas_height: 800, portrait_scale: 0.5, caption_bias: 900, prompt: p}\n"},
		{name: "missing prompt", raw: "frames:\n  - {type: ikhwan, canvas_width: 800, canvas_height: 800, portrait_scale: 0.5}\n"},
		{name: "bad color", raw: "frames:\n  - {type: ikhwan, canvas_width: 800, canvas_height: 800, portrait_scale: 0.5, background: '#zz', prompt: p}\n"},
		{name: "duplicate", raw: "frames:\n  - {type: ikhwan, canvas_width: 8, canvas_height: 8, portrait_scale: 0.5, prompt: p}\n  - {type: ikhwan, canvas_width: 8, canvas_height: 8, portrait_scale: 0.5, prompt: p}\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw), fstest.MapFS{})
			require.Error(t, err)
		})
	}
}

func TestOverlayMissingAsset(t *testing.T) {
	reg, err := Parse([]byte("frames:\n  - {type: ikhwan, canvas_width: 8, canvas_height: 8, portrait_scale: 0.5, prompt: p}\n"), fstest.MapFS{})
	require.NoError(t, err)

	_, err = reg.Overlay(domain.FrameIkhwan)
	require.Error(t, err)
	require.Equal(t, domain.CodeAssetMissing, domain.CodeOf(err))

	_, err = reg.Overlay(domain.FrameAkhwat)
	require.Equal(t, domain.CodeUnknownFrame, domain.CodeOf(err))
}
