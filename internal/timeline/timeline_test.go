package timeline

import (
	"math"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/ivlev/slidecast/internal/storyboard"
)

func slides(durations ...float64) []storyboard.Slide {
	out := make([]storyboard.Slide, len(durations))
	for i, d := range durations {
		out[i] = storyboard.Slide{ID: uuid.New(), Duration: d}
	}
	return out
}

func TestBuildTotalEqualsSegmentSum(t *testing.T) {
	cases := [][]float64{
		{4, 2},
		{0.5, 1.25, 3},
		{0.0004}, // rounds to 0ms, clamps to 1ms
		{10},
	}

	for _, durations := range cases {
		tl := Build(slides(durations...))

		var sum int64
		for _, seg := range tl.Segments {
			if seg.DurationMs < 1 {
				t.Errorf("Segment duration below 1ms: %d", seg.DurationMs)
			}
			sum += seg.DurationMs
		}
		if tl.TotalMs != sum {
			t.Errorf("Total %dms does not match segment sum %dms for %v", tl.TotalMs, sum, durations)
		}

		var expected int64
		for _, d := range durations {
			ms := int64(math.Round(d * 1000))
			if ms < 1 {
				ms = 1
			}
			expected += ms
		}
		if tl.TotalMs != expected {
			t.Errorf("Expected total %dms, got %dms for %v", expected, tl.TotalMs, durations)
		}
	}
}

func TestBuildClampsNonPositiveDurations(t *testing.T) {
	tl := Build(slides(0, -3))
	for i, seg := range tl.Segments {
		if seg.DurationMs != 1 {
			t.Errorf("Segment %d: expected 1ms clamp, got %d", i, seg.DurationMs)
		}
	}
}

func TestBuildEmptyList(t *testing.T) {
	tl := Build(nil)
	if len(tl.Segments) != 0 {
		t.Errorf("Expected no segments, got %d", len(tl.Segments))
	}
	if tl.TotalMs != 1 {
		t.Errorf("Expected total clamped to 1ms, got %d", tl.TotalMs)
	}
	// Mapper must not crash on an empty timeline either.
	if f := Map(tl, 100); f.Index != 0 || f.Progress != 0 {
		t.Errorf("Expected zero frame on empty timeline, got %+v", f)
	}
}

func TestBuildDeterministic(t *testing.T) {
	src := slides(1, 2.5, 0.75)
	a := Build(src)
	b := Build(src)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Build is not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestMapStartAndEnd(t *testing.T) {
	tl := Build(slides(1, 2, 3))

	start := Map(tl, 0)
	if start.Index != 0 || start.Progress != 0 {
		t.Errorf("Expected {0 0} at t=0, got %+v", start)
	}

	end := Map(tl, float64(tl.TotalMs-1))
	if end.Index != len(tl.Segments)-1 {
		t.Errorf("Expected last segment at t=total-1, got index %d", end.Index)
	}

	// Values past the end are clamped into the final segment.
	over := Map(tl, float64(tl.TotalMs)+5000)
	if over.Index != len(tl.Segments)-1 {
		t.Errorf("Expected clamp into last segment, got index %d", over.Index)
	}
	if over.Progress > 1 {
		t.Errorf("Progress above 1 after clamping: %f", over.Progress)
	}
}

func TestMapSingleSlide(t *testing.T) {
	tl := Build(slides(1))
	if len(tl.Segments) != 1 || tl.Segments[0].DurationMs != 1000 || tl.TotalMs != 1000 {
		t.Fatalf("Unexpected timeline for one 1s slide: %+v", tl)
	}

	f := Map(tl, 500)
	if f.Index != 0 || f.Progress != 0.5 {
		t.Errorf("Expected {0 0.5}, got %+v", f)
	}
}

func TestMapScenario(t *testing.T) {
	tl := Build(slides(4, 2))
	if tl.Segments[0].DurationMs != 4000 || tl.Segments[1].DurationMs != 2000 || tl.TotalMs != 6000 {
		t.Fatalf("Unexpected timeline: %+v", tl)
	}

	f := Map(tl, 5000)
	if f.Index != 1 || f.Progress != 0.5 {
		t.Errorf("Expected {1 0.5}, got %+v", f)
	}
}

func TestMapBoundaryPrefersEarlierSegment(t *testing.T) {
	tl := Build(slides(4, 2))

	// Точная граница остаётся на конце первого сегмента, не на
	// начале второго: сдвиг правила смещает границы кадров на тик.
	f := Map(tl, 4000)
	if f.Index != 0 || f.Progress != 1 {
		t.Errorf("Expected {0 1} at exact boundary, got %+v", f)
	}

	after := Map(tl, 4001)
	if after.Index != 1 {
		t.Errorf("Expected segment 1 just past the boundary, got %+v", after)
	}
}

func TestMapNegativeElapsedClamped(t *testing.T) {
	tl := Build(slides(2, 2))
	f := Map(tl, -50)
	if f.Index != 0 || f.Progress != 0 {
		t.Errorf("Expected {0 0} for negative elapsed, got %+v", f)
	}
}
