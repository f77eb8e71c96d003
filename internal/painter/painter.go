package painter

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/slidecast/internal/storyboard"
)

// Фон по умолчанию, если цвет слайда не задан или не распарсился.
var fallbackBackground = color.RGBA{R: 0x1d, G: 0x27, B: 0x33, A: 255}

// Painter renders one storyboard slide onto an RGBA canvas at a given
// local progress. Paint is idempotent and keeps no per-frame state, so
// the same (slide, progress) pair always produces the same pixels.
type Painter struct {
	width  int
	height int
	title  font.Face
	body   font.Face
	qr     image.Image
}

// New prepares font faces sized for the canvas and, when link is set,
// a QR watermark rendered once and reused on every frame.
func New(width, height int, link string) (*Painter, error) {
	titleFont, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("шрифт заголовка: %w", err)
	}
	bodyFont, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("шрифт текста: %w", err)
	}

	titleFace, err := opentype.NewFace(titleFont, &opentype.FaceOptions{
		Size:    float64(height) / 12,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	bodyFace, err := opentype.NewFace(bodyFont, &opentype.FaceOptions{
		Size:    float64(height) / 24,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}

	p := &Painter{
		width:  width,
		height: height,
		title:  titleFace,
		body:   bodyFace,
	}

	if link != "" {
		qr, err := qrcode.New(link, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("QR-код: %w", err)
		}
		p.qr = qr.Image(height / 6)
	}

	return p, nil
}

// Paint draws the slide at the given local progress in [0,1].
func (p *Painter) Paint(dst *image.RGBA, slide storyboard.Slide, progress float64) {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	bg := fallbackBackground
	if slide.Background != "" {
		if parsed, err := storyboard.ParseColor(slide.Background); err == nil {
			bg = parsed
		}
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	ink := inkFor(bg)
	margin := p.width / 16

	// Заголовок въезжает слева в первые 15% сегмента.
	titleReveal := ramp(progress, 0, 0.15)
	titleX := margin - int((1-easeOutCubic(titleReveal))*float64(p.width)/20)
	titleY := p.height / 5
	p.drawText(dst, p.title, slide.Title, titleX, titleY, withAlpha(ink, titleReveal))

	// Текст проявляется следом, к 40% сегмента он полностью виден.
	bodyReveal := ramp(progress, 0.1, 0.4)
	if bodyReveal > 0 && slide.Body != "" {
		lineHeight := p.body.Metrics().Height.Ceil() * 13 / 10
		y := titleY + lineHeight*2
		for _, line := range wrapText(p.body, slide.Body, p.width-2*margin) {
			p.drawText(dst, p.body, line, margin, y, withAlpha(ink, bodyReveal))
			y += lineHeight
			if y > p.height-p.height/8 {
				break
			}
		}
	}

	if p.qr != nil {
		qb := p.qr.Bounds()
		at := image.Pt(p.width-qb.Dx()-margin/2, p.height-qb.Dy()-margin/2)
		draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(qb.Size())}, p.qr, qb.Min, draw.Over)
	}

	// Полоса локального прогресса по нижней кромке.
	barH := p.height / 72
	if barH < 2 {
		barH = 2
	}
	barW := int(progress * float64(p.width))
	bar := image.Rect(0, p.height-barH, barW, p.height)
	draw.Draw(dst, bar, image.NewUniform(withAlpha(ink, 0.7)), image.Point{}, draw.Over)
}

func (p *Painter) drawText(dst *image.RGBA, face font.Face, text string, x, y int, col color.Color) {
	if text == "" {
		return
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// inkFor picks a readable text color for the given background.
func inkFor(bg color.RGBA) color.NRGBA {
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 150 {
		return color.NRGBA{R: 0x17, G: 0x17, B: 0x17, A: 255}
	}
	return color.NRGBA{R: 0xf2, G: 0xf2, B: 0xf2, A: 255}
}

func withAlpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(a * 255)
	return c
}

// ramp maps progress onto [0,1] across the [from, to] window.
func ramp(progress, from, to float64) float64 {
	if progress <= from {
		return 0
	}
	if progress >= to {
		return 1
	}
	return (progress - from) / (to - from)
}

func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// wrapText breaks text into lines no wider than maxWidth for the face.
// Explicit newlines are preserved.
func wrapText(face font.Face, text string, maxWidth int) []string {
	var lines []string
	limit := fixed.I(maxWidth)

	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, w := range words[1:] {
			candidate := current + " " + w
			if font.MeasureString(face, candidate) > limit {
				lines = append(lines, current)
				current = w
				continue
			}
			current = candidate
		}
		lines = append(lines, current)
	}

	return lines
}
