package color

import (
	"context"
	"hash/fnv"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/okian/agenda/pkg/metrics"
)

// minContrast is the smallest acceptable WCAG contrast ratio between an
// event color and a white background. Colors below it wash out in the
// agenda view.
const minContrast = 3.0

// defaultPalette holds the curated event colors, ordered by preference.
// Every entry clears minContrast against white.
var defaultPalette = []string{
	"#d50000", "#c2185b", "#7b1fa2", "#512da8",
	"#303f9f", "#1976d2", "#0288d1", "#0097a7",
	"#00796b", "#388e3c", "#689f38", "#e65100",
	"#5d4037", "#616161", "#455a64", "#8e24aa",
}

// Allocator hands out colors for canonical event ids that have none.
// committed maps ids to colors already fixed earlier in the same pass,
// so allocators can avoid clashing with them.
type Allocator interface {
	AssignColors(ctx context.Context, ids []string, committed map[string]string) (map[string]string, error)
}

// Palette is a deterministic allocator over a fixed color list. Given the
// same ids and committed set it always produces the same assignment. When
// every palette entry is taken it derives extra colors from the event id
// itself, so allocation never fails outright.
type Palette struct {
	colors []string
}

// PaletteOption configures a Palette.
type PaletteOption func(*Palette)

// WithColors replaces the curated color list. Entries that fail the
// contrast check are dropped.
func WithColors(colors []string) PaletteOption {
	return func(p *Palette) {
		kept := make([]string, 0, len(colors))
		for _, c := range colors {
			if ValidateColor(c) {
				kept = append(kept, c)
			} else {
				metrics.RecordColorRejected()
			}
		}
		if len(kept) > 0 {
			p.colors = kept
		}
	}
}

// NewPalette creates the default deterministic allocator.
func NewPalette(opts ...PaletteOption) *Palette {
	p := &Palette{colors: defaultPalette}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AssignColors picks, for each id in order, the first palette color not
// already used by a committed or earlier assignment. Exhaustion falls back
// to a hash-derived color unique to the id.
func (p *Palette) AssignColors(ctx context.Context, ids []string, committed map[string]string) (map[string]string, error) {
	used := make(map[string]struct{}, len(committed)+len(ids))
	for _, c := range committed {
		used[c] = struct{}{}
	}

	out := make(map[string]string, len(ids))
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		color := ""
		for _, c := range p.colors {
			if _, taken := used[c]; !taken {
				color = c
				break
			}
		}
		if color == "" {
			metrics.RecordColorCollision()
			color = derivedColor(id)
		}
		used[color] = struct{}{}
		out[id] = color
	}
	metrics.RecordPaletteAllocations(len(out))
	return out, nil
}

// ValidateColor reports whether a hex color is parseable and readable
// against a white background.
func ValidateColor(hex string) bool {
	c, err := colorful.Hex(hex)
	if err != nil {
		return false
	}
	return contrastVsWhite(c) >= minContrast
}

// contrastVsWhite computes the WCAG contrast ratio between c and white.
// White's relative luminance is 1.0, so the ratio reduces to
// 1.05 / (L + 0.05).
func contrastVsWhite(c colorful.Color) float64 {
	r, g, b := c.LinearRgb()
	lum := 0.2126*r + 0.7152*g + 0.0722*b
	return 1.05 / (lum + 0.05)
}

// derivedColor maps an id onto the HCL hue circle at fixed chroma and
// lightness. The lightness keeps the result dark enough to stay readable.
func derivedColor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	hue := float64(h.Sum32() % 360)
	return colorful.Hcl(hue, 0.6, 0.45).Clamped().Hex()
}
