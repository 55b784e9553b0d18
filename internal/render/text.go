package render

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Style selects a typeface.
type Style int

const (
	Regular Style = iota
	Bold
	// Emoji uses the optional user-supplied font. It falls back to Bold.
	Emoji
)

// Align is horizontal text alignment relative to the anchor x.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Baseline is vertical text alignment relative to the anchor y.
type Baseline int

const (
	BaselineAlphabetic Baseline = iota
	BaselineTop
	BaselineMiddle
)

// Shadow is a hard drop shadow drawn under text.
type Shadow struct {
	DX, DY float64
	Color  color.Color
}

// TextOptions positions a single line of text.
type TextOptions struct {
	Style    Style
	Size     float64
	X, Y     float64
	Align    Align
	Baseline Baseline
	Color    color.Color
	Shadow   *Shadow
}

// Fonts holds parsed typefaces. It is safe to share between goroutines; the
// faces built from it are not, so each goroutine takes its own Typesetter.
type Fonts struct {
	regular *opentype.Font
	bold    *opentype.Font
	emoji   *opentype.Font
}

var (
	goFontsOnce sync.Once
	goRegular   *opentype.Font
	goBold      *opentype.Font
	goFontsErr  error
)

func loadGoFonts() (*opentype.Font, *opentype.Font, error) {
	goFontsOnce.Do(func() {
		goRegular, goFontsErr = opentype.Parse(goregular.TTF)
		if goFontsErr != nil {
			return
		}
		goBold, goFontsErr = opentype.Parse(gobold.TTF)
	})
	return goRegular, goBold, goFontsErr
}

// LoadFonts loads the bundled Go fonts plus, when emojiPath is set, a font
// used for emoji stickers.
func LoadFonts(emojiPath string) (*Fonts, error) {
	regular, bold, err := loadGoFonts()
	if err != nil {
		return nil, fmt.Errorf("failed to parse bundled fonts: %w", err)
	}
	f := &Fonts{regular: regular, bold: bold}
	if emojiPath != "" {
		data, err := os.ReadFile(emojiPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		f.emoji, err = opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %w", err)
		}
	}
	return f, nil
}

// MustDefaultFonts returns the bundled fonts and panics if they fail to parse.
func MustDefaultFonts() *Fonts {
	f, err := LoadFonts("")
	if err != nil {
		panic(err)
	}
	return f
}

// HasEmoji reports whether an emoji font was loaded.
func (f *Fonts) HasEmoji() bool { return f.emoji != nil }

// Typesetter measures and draws text. Not safe for concurrent use.
type Typesetter struct {
	fonts *Fonts
	faces map[faceKey]font.Face
}

type faceKey struct {
	style Style
	size  float64
}

// NewTypesetter returns a typesetter over f.
func NewTypesetter(f *Fonts) *Typesetter {
	return &Typesetter{fonts: f, faces: make(map[faceKey]font.Face)}
}

// HasEmoji reports whether Emoji draws with a dedicated font.
func (t *Typesetter) HasEmoji() bool { return t.fonts.HasEmoji() }

// Face returns a cached face of the given style and pixel size.
func (t *Typesetter) Face(style Style, size float64) font.Face {
	key := faceKey{style, size}
	if face, ok := t.faces[key]; ok {
		return face
	}
	src := t.fonts.regular
	switch style {
	case Bold:
		src = t.fonts.bold
	case Emoji:
		src = t.fonts.bold
		if t.fonts.emoji != nil {
			src = t.fonts.emoji
		}
	}
	face, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		// NewFace only fails on invalid options; size and DPI are always positive here.
		panic(fmt.Sprintf("render: create face: %v", err))
	}
	t.faces[key] = face
	return face
}

// Measure returns the advance width of s in pixels.
func (t *Typesetter) Measure(style Style, size float64, s string) float64 {
	return fixedToFloat(font.MeasureString(t.Face(style, size), s))
}

// Draw renders one line of text.
func (t *Typesetter) Draw(dst draw.Image, s string, o TextOptions) {
	if s == "" {
		return
	}
	face := t.Face(o.Style, o.Size)
	width := font.MeasureString(face, s)
	m := face.Metrics()

	x := floatToFixed(o.X)
	switch o.Align {
	case AlignCenter:
		x -= width / 2
	case AlignRight:
		x -= width
	}
	y := floatToFixed(o.Y)
	switch o.Baseline {
	case BaselineTop:
		y += m.Ascent
	case BaselineMiddle:
		y += (m.Ascent - m.Descent) / 2
	}

	if o.Shadow != nil {
		shadow := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(o.Shadow.Color),
			Face: face,
			Dot:  fixed.Point26_6{X: x + floatToFixed(o.Shadow.DX), Y: y + floatToFixed(o.Shadow.DY)},
		}
		shadow.DrawString(s)
	}

	col := o.Color
	if col == nil {
		col = color.White
	}
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	drawer.DrawString(s)
}

// Wrap breaks text into at most maxLines lines no wider than maxWidth.
func (t *Typesetter) Wrap(style Style, size float64, text string, maxWidth float64, maxLines int) []string {
	return WrapLines(func(s string) float64 { return t.Measure(style, size, s) }, text, maxWidth, maxLines)
}

// Ellipsis is appended to the last line when text is truncated.
const Ellipsis = "..."

// WrapLines greedily packs the space-separated words of text into lines no
// wider than maxWidth. A single word wider than maxWidth gets a line of its
// own. When words remain after maxLines lines, the last line ends with
// Ellipsis, dropping trailing words as needed for it to fit.
func WrapLines(measure func(string) float64, text string, maxWidth float64, maxLines int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || maxLines <= 0 {
		return nil
	}

	var lines [][]string
	var cur []string
	for _, w := range words {
		candidate := append(append([]string(nil), cur...), w)
		if len(cur) > 0 && measure(strings.Join(candidate, " ")) > maxWidth {
			lines = append(lines, cur)
			cur = []string{w}
			continue
		}
		cur = candidate
	}
	lines = append(lines, cur)

	if len(lines) <= maxLines {
		out := make([]string, len(lines))
		for i, l := range lines {
			out[i] = strings.Join(l, " ")
		}
		return out
	}

	out := make([]string, maxLines)
	for i := 0; i < maxLines-1; i++ {
		out[i] = strings.Join(lines[i], " ")
	}
	last := lines[maxLines-1]
	for len(last) > 1 && measure(strings.Join(last, " ")+Ellipsis) > maxWidth {
		last = last[:len(last)-1]
	}
	out[maxLines-1] = strings.Join(last, " ") + Ellipsis
	return out
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
