package storyboard

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/google/uuid"
)

// DefaultDuration is used for slides that do not specify one.
const DefaultDuration = 5.0

// Storyboard represents a complete slide deck for a video
type Storyboard struct {
	Version string  `yaml:"version" json:"version"`
	Title   string  `yaml:"title" json:"title"`
	Link    string  `yaml:"link,omitempty" json:"link,omitempty"` // optional URL rendered as a QR watermark
	Slides  []Slide `yaml:"slides" json:"slides"`
}

// Slide represents a single storyboard card with its display time
type Slide struct {
	ID         uuid.UUID `yaml:"id" json:"id"`
	Title      string    `yaml:"title" json:"title"`
	Body       string    `yaml:"body" json:"body"`
	Background string    `yaml:"background" json:"background"` // hex color, e.g. "#1d2733"
	Duration   float64   `yaml:"duration" json:"duration"`     // seconds on screen
}

// New returns a minimal single-slide storyboard used by `slidecast init`.
func New(title string) *Storyboard {
	return &Storyboard{
		Version: "1.0",
		Title:   title,
		Slides: []Slide{
			{
				ID:         uuid.New(),
				Title:      title,
				Body:       "Первый слайд. Отредактируйте storyboard.yaml и запустите export.",
				Background: "#1d2733",
				Duration:   DefaultDuration,
			},
		},
	}
}

// Normalize присваивает идентификаторы новым слайдам и подставляет
// длительность по умолчанию. Вызывается после каждого чтения документа.
func (b *Storyboard) Normalize() {
	if b.Version == "" {
		b.Version = "1.0"
	}
	for i := range b.Slides {
		if b.Slides[i].ID == uuid.Nil {
			b.Slides[i].ID = uuid.New()
		}
		if b.Slides[i].Duration <= 0 {
			b.Slides[i].Duration = DefaultDuration
		}
	}
}

// Validate reports the first structural problem of the document.
func (b *Storyboard) Validate() error {
	if len(b.Slides) == 0 {
		return fmt.Errorf("раскадровка не содержит слайдов")
	}
	for i, s := range b.Slides {
		if s.Duration <= 0 {
			return fmt.Errorf("слайд %d: длительность должна быть больше нуля", i+1)
		}
		if s.Background != "" {
			if _, err := ParseColor(s.Background); err != nil {
				return fmt.Errorf("слайд %d: %w", i+1, err)
			}
		}
	}
	return nil
}

// ParseColor parses a "#rrggbb" (or "#rgb") hex string into an opaque RGBA.
func ParseColor(s string) (color.RGBA, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "#")
	var r, g, b uint8
	switch len(raw) {
	case 6:
		if _, err := fmt.Sscanf(raw, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("неверный цвет %q", s)
		}
	case 3:
		if _, err := fmt.Sscanf(raw, "%1x%1x%1x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("неверный цвет %q", s)
		}
		r, g, b = r*17, g*17, b*17
	default:
		return color.RGBA{}, fmt.Errorf("неверный цвет %q", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
