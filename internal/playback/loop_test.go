package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/timeline"
)

func shortTimeline(durations ...float64) timeline.Timeline {
	slides := make([]storyboard.Slide, len(durations))
	for i, d := range durations {
		slides[i] = storyboard.Slide{ID: uuid.New(), Duration: d}
	}
	return timeline.Build(slides)
}

func TestOnceModeCompletes(t *testing.T) {
	loop := NewLoop(500) // тики каждые 2мс
	tl := shortTimeline(0.05)

	var ticks atomic.Int64
	var lastProgress atomic.Value
	done := make(chan struct{})

	loop.Start(tl, Once, func(index int, progress float64) error {
		if index != 0 {
			t.Errorf("Unexpected index %d for single-slide timeline", index)
		}
		ticks.Add(1)
		lastProgress.Store(progress)
		return nil
	}, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not complete in time")
	}

	if ticks.Load() == 0 {
		t.Fatal("Expected at least one tick")
	}
	// Последний отрисованный кадр — граница шкалы (TotalMs-1).
	p, _ := lastProgress.Load().(float64)
	if p < 0.9 {
		t.Errorf("Expected final frame near progress 1, got %f", p)
	}
}

func TestCancelSuppressesCompletionAndTicks(t *testing.T) {
	loop := NewLoop(500)
	tl := shortTimeline(10) // заведомо длиннее теста

	var ticks atomic.Int64
	completed := make(chan struct{}, 1)

	h := loop.Start(tl, Looping, func(index int, progress float64) error {
		ticks.Add(1)
		return nil
	}, func() { completed <- struct{}{} })

	// Даём циклу поработать, затем отменяем.
	time.Sleep(20 * time.Millisecond)
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled run did not exit")
	}

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := ticks.Load(); got != after {
		t.Errorf("Ticks continued after cancellation: %d -> %d", after, got)
	}

	select {
	case <-completed:
		t.Error("onComplete fired after cancellation")
	default:
	}
}

func TestStartSupersedesPriorRun(t *testing.T) {
	loop := NewLoop(500)
	tl := shortTimeline(10)

	var firstTicks atomic.Int64
	first := loop.Start(tl, Looping, func(int, float64) error {
		firstTicks.Add(1)
		return nil
	}, nil)

	time.Sleep(20 * time.Millisecond)

	second := loop.Start(tl, Looping, func(int, float64) error { return nil }, nil)
	defer second.Cancel()

	// Первый запуск обязан завершиться сам, без явной отмены.
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Superseded run did not exit")
	}

	frozen := firstTicks.Load()
	time.Sleep(30 * time.Millisecond)
	if got := firstTicks.Load(); got != frozen {
		t.Errorf("Superseded run kept ticking: %d -> %d", frozen, got)
	}
}

func TestStaleHandleCancelDoesNotDisturbNewRun(t *testing.T) {
	loop := NewLoop(500)
	tl := shortTimeline(10)

	first := loop.Start(tl, Looping, func(int, float64) error { return nil }, nil)

	var secondTicks atomic.Int64
	second := loop.Start(tl, Looping, func(int, float64) error {
		secondTicks.Add(1)
		return nil
	}, nil)
	defer second.Cancel()

	<-first.Done()
	before := secondTicks.Load()

	// Отмена устаревшего хэндла не должна останавливать новый запуск.
	first.Cancel()
	time.Sleep(30 * time.Millisecond)

	if secondTicks.Load() <= before {
		t.Error("New run stopped after stale handle cancellation")
	}
}

func TestLoopingModeWraps(t *testing.T) {
	loop := NewLoop(500)
	tl := shortTimeline(0.02) // 20мс на круг

	var ticks atomic.Int64
	h := loop.Start(tl, Looping, func(int, float64) error {
		ticks.Add(1)
		return nil
	}, func() {
		t.Error("onComplete must never fire in looping mode")
	})

	// За 200мс цикл должен пройти шкалу несколько раз и продолжать тикать.
	time.Sleep(200 * time.Millisecond)
	h.Cancel()
	<-h.Done()

	if ticks.Load() < 10 {
		t.Errorf("Expected sustained ticking across loop wraps, got %d ticks", ticks.Load())
	}
}

func TestTickErrorsDoNotAbortLoop(t *testing.T) {
	loop := NewLoop(500)
	tl := shortTimeline(0.05)

	var ticks atomic.Int64
	done := make(chan struct{})

	loop.Start(tl, Once, func(int, float64) error {
		ticks.Add(1)
		return surfaceNotReady{}
	}, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop aborted on tick errors instead of skipping frames")
	}
	if ticks.Load() == 0 {
		t.Error("Expected ticks despite render errors")
	}
}

type surfaceNotReady struct{}

func (surfaceNotReady) Error() string { return "поверхность не готова" }
