package source

import (
	"fmt"
	"image"
	"log"

	"github.com/google/uuid"

	"github.com/ivlev/slidecast/internal/storyboard"
)

// BuildStoryboard генерирует раскадровку из постраничного источника:
// по слайду на страницу, фон — усреднённый цвет страницы. Страницы,
// которые не удалось отрисовать, пропускаются с предупреждением.
func BuildStoryboard(src Source, title string, dpi int, slideDuration float64) (*storyboard.Storyboard, error) {
	pageCount := src.PageCount()
	if pageCount == 0 {
		return nil, fmt.Errorf("источник не содержит страниц")
	}
	if slideDuration <= 0 {
		slideDuration = storyboard.DefaultDuration
	}

	board := &storyboard.Storyboard{
		Version: "1.0",
		Title:   title,
	}

	for i := 0; i < pageCount; i++ {
		img, err := src.RenderPage(i, dpi)
		if err != nil {
			log.Printf("[!] Страница %d не отрисована: %v", i+1, err)
			continue
		}

		board.Slides = append(board.Slides, storyboard.Slide{
			ID:         uuid.New(),
			Title:      fmt.Sprintf("Страница %d", i+1),
			Background: AverageColor(img),
			Duration:   slideDuration,
		})
	}

	if len(board.Slides) == 0 {
		return nil, fmt.Errorf("ни одна страница не отрисована")
	}

	return board, nil
}

// AverageColor вычисляет усреднённый цвет изображения в hex-форме.
// Для больших страниц берётся решётка выборки, а не каждый пиксель.
func AverageColor(img image.Image) string {
	bounds := img.Bounds()
	if bounds.Empty() {
		return "#1d2733"
	}

	step := bounds.Dx() / 64
	if step < 1 {
		step = 1
	}

	var r, g, b, n uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			b += uint64(pb >> 8)
			n++
		}
	}
	if n == 0 {
		return "#1d2733"
	}

	return fmt.Sprintf("#%02x%02x%02x", uint8(r/n), uint8(g/n), uint8(b/n))
}
