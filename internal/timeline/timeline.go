package timeline

import (
	"math"

	"github.com/google/uuid"

	"github.com/ivlev/slidecast/internal/storyboard"
)

// Segment is one slide's time range inside the flattened timeline
type Segment struct {
	ID         uuid.UUID
	DurationMs int64
}

// Timeline is the ordered, flattened representation of all segments
type Timeline struct {
	Segments []Segment
	TotalMs  int64
}

// Frame identifies the active segment and the local progress inside it
type Frame struct {
	Index    int
	Progress float64 // [0,1]
}

// Build превращает список слайдов в непрерывную шкалу времени.
// Никогда не завершается ошибкой: длительности защитно ограничиваются
// снизу одной миллисекундой, как и итоговая сумма.
func Build(slides []storyboard.Slide) Timeline {
	segments := make([]Segment, 0, len(slides))
	var total int64

	for _, s := range slides {
		d := int64(math.Round(s.Duration * 1000))
		if d < 1 {
			d = 1
		}
		segments = append(segments, Segment{ID: s.ID, DurationMs: d})
		total += d
	}

	if total < 1 {
		total = 1
	}

	return Timeline{Segments: segments, TotalMs: total}
}

// Map resolves an elapsed wall-clock time to (segment, local progress).
// Elapsed time is clamped into [0, TotalMs-1]. On exact boundary equality
// the time maps to the earlier segment's final progress, not the next
// segment's start; the last segment matches whatever did not fit earlier.
func Map(tl Timeline, elapsedMs float64) Frame {
	if len(tl.Segments) == 0 {
		return Frame{}
	}

	if elapsedMs < 0 {
		elapsedMs = 0
	}
	if limit := float64(tl.TotalMs - 1); elapsedMs > limit {
		elapsedMs = limit
	}

	var consumed float64
	last := len(tl.Segments) - 1
	for i, seg := range tl.Segments {
		d := float64(seg.DurationMs)
		remaining := elapsedMs - consumed
		if remaining <= d || i == last {
			if d <= 0 {
				return Frame{Index: i, Progress: 0}
			}
			return Frame{Index: i, Progress: remaining / d}
		}
		consumed += d
	}

	return Frame{Index: last, Progress: 1}
}
