package playback

import (
	"sync"
	"time"

	"github.com/ivlev/slidecast/internal/timeline"
)

// Mode задаёт поведение цикла по достижении конца шкалы времени.
type Mode int

const (
	Once Mode = iota // один проход, затем onComplete
	Looping          // перезапуск с начала без остановки
)

// TickFunc renders one frame. A returned error means the frame was
// skipped (surface not ready); it never aborts the loop.
type TickFunc func(index int, progress float64) error

// Loop is the single scheduling consumer of one rendering surface.
// Starting a run supersedes any prior run: the generation counter is
// bumped, and a live tick of the old run notices before rendering or
// scheduling again. There is never more than one active tick chain.
type Loop struct {
	interval time.Duration

	mu  sync.Mutex
	gen uint64
}

// Handle identifies one run of the loop and can cancel it.
type Handle struct {
	loop *Loop
	gen  uint64
	done chan struct{}
}

// NewLoop creates a loop ticking at the display refresh cadence.
func NewLoop(fps int) *Loop {
	if fps < 1 {
		fps = 1
	}
	return &Loop{interval: time.Second / time.Duration(fps)}
}

// Start begins a new run over the timeline. Any prior run of this loop
// is cancelled first. onComplete fires only in Once mode and only if
// the run finished without cancellation.
func (l *Loop) Start(tl timeline.Timeline, mode Mode, onTick TickFunc, onComplete func()) *Handle {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	h := &Handle{loop: l, gen: gen, done: make(chan struct{})}
	go l.run(h, tl, mode, onTick, onComplete)
	return h
}

// CancelAll отменяет текущий запуск, если он есть.
func (l *Loop) CancelAll() {
	l.mu.Lock()
	l.gen++
	l.mu.Unlock()
}

func (l *Loop) alive(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

func (l *Loop) run(h *Handle, tl timeline.Timeline, mode Mode, onTick TickFunc, onComplete func()) {
	defer close(h.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	start := time.Now()
	for range ticker.C {
		// Проверка жизнеспособности строго до отрисовки и планирования.
		if !l.alive(h.gen) {
			return
		}

		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		if elapsed >= float64(tl.TotalMs) {
			// Финальный кадр рендерится один раз на границе шкалы.
			final := timeline.Map(tl, float64(tl.TotalMs-1))
			_ = onTick(final.Index, final.Progress) // пропуск кадра не фатален

			if mode == Looping {
				start = time.Now()
				continue
			}

			if l.alive(h.gen) && onComplete != nil {
				onComplete()
			}
			return
		}

		f := timeline.Map(tl, elapsed)
		_ = onTick(f.Index, f.Progress)
	}
}

// Cancel cooperatively stops this run. It only bumps the generation
// when the run is still the current one, so cancelling a stale handle
// does not disturb a newer run.
func (h *Handle) Cancel() {
	l := h.loop
	l.mu.Lock()
	if l.gen == h.gen {
		l.gen++
	}
	l.mu.Unlock()
}

// Done closes when the run's goroutine has exited, for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
