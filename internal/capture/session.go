package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/ivlev/slidecast/internal/encoder"
	"github.com/ivlev/slidecast/internal/painter"
	"github.com/ivlev/slidecast/internal/playback"
	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/surface"
	"github.com/ivlev/slidecast/internal/timeline"
)

// State — фаза сессии захвата.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// Причины отказа в захвате. Отказ не оставляет побочных эффектов.
var (
	ErrNoSlides = fmt.Errorf("раскадровка пуста, захват невозможен")
	ErrBusy     = fmt.Errorf("захват уже выполняется")
	ErrNoStream = fmt.Errorf("поверхность не может отдать поток для записи")
	ErrEncoder  = fmt.Errorf("кодировщик недоступен")
)

// Result is delivered once per capture run.
type Result struct {
	Artifact *Artifact
	Err      error
	Frames   int64
	Elapsed  time.Duration
}

// Session orchestrates a one-shot playback run against a capturable
// surface while the streaming encoder consumes its frames. At most one
// run is active at a time; the session owns the stream's tracks and the
// retained artifact for the duration of the run, and releases both on
// every exit path: completion, error, and teardown.
type Session struct {
	service *encoder.Service
	dir     string // каталог готовых артефактов
	notify  func(state string)

	mu       sync.Mutex
	state    State
	chunks   [][]byte
	artifact *Artifact
	handle   *playback.Handle
	stream   *surface.Stream
	rec      *encoder.Recorder
}

// NewSession creates an idle capture session. notify receives textual
// status transitions for the UI and may be nil.
func NewSession(service *encoder.Service, dir string, notify func(string)) *Session {
	if notify == nil {
		notify = func(string) {}
	}
	return &Session{service: service, dir: dir, notify: notify}
}

// State reports the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether a capture run is in flight.
func (s *Session) Recording() bool {
	return s.State() != Idle
}

// Artifact returns the currently retained artifact, if any.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// Start begins a capture of the full timeline against the canvas. The
// returned channel receives exactly one Result. Preconditions are
// checked before any resource is acquired; a rejected start has no
// side effects on an in-flight run.
func (s *Session) Start(tl timeline.Timeline, board *storyboard.Storyboard, canvas *surface.Canvas, fps, timesliceMs int) (<-chan Result, error) {
	if board == nil || len(board.Slides) == 0 {
		return nil, ErrNoSlides
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.state = Recording
	s.chunks = nil
	s.mu.Unlock()

	// Любой отказ ниже обязан вернуть флаги в состояние покоя и
	// освободить уже захваченные ресурсы — ничего "висящего".
	fail := func(stream *surface.Stream, reason error, cause error) (<-chan Result, error) {
		if stream != nil {
			stream.StopTracks()
		}
		s.mu.Lock()
		s.state = Idle
		s.mu.Unlock()
		s.notify("unsupported")
		if cause != nil {
			return nil, fmt.Errorf("%w: %v", reason, cause)
		}
		return nil, reason
	}

	stream, err := canvas.CreateStream(fps)
	if err != nil {
		return fail(nil, ErrNoStream, err)
	}

	// Переговоры о формате: первый поддержанный из списка предпочтений,
	// иначе формат по умолчанию. Недоступность опроса не фатальна.
	format := s.service.Negotiate(encoder.Preferred)

	rec, err := s.service.Create(stream, format)
	if err != nil {
		return fail(stream, ErrEncoder, err)
	}

	pnt, err := painter.New(canvas.Width(), canvas.Height(), board.Link)
	if err != nil {
		rec.Abort()
		return fail(stream, ErrEncoder, err)
	}

	results := make(chan Result, 1)
	started := time.Now()
	var frames int64

	rec.OnData(func(fragment []byte) {
		if len(fragment) == 0 {
			return
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, fragment)
		s.mu.Unlock()
	})

	rec.OnStop(func() {
		s.finalize(rec, stream, results, frames, started)
	})

	if err := rec.Start(timesliceMs); err != nil {
		rec.Abort()
		return fail(stream, ErrEncoder, err)
	}

	slides := board.Slides
	loop := playback.NewLoop(fps)
	handle := loop.Start(tl, playback.Once, func(index int, progress float64) error {
		if index >= len(slides) {
			return fmt.Errorf("нет слайда %d", index)
		}
		frame := canvas.Frame()
		if frame == nil {
			return fmt.Errorf("поверхность не готова")
		}
		pnt.Paint(frame, slides[index], progress)
		frames++
		return stream.WriteFrame(frame)
	}, func() {
		// Один проход завершён: сигнал кодировщику остановиться.
		// Финализация придёт асинхронно через OnStop.
		s.mu.Lock()
		s.state = Finalizing
		s.mu.Unlock()
		rec.Stop()
	})

	s.mu.Lock()
	s.stream = stream
	s.handle = handle
	s.rec = rec
	s.mu.Unlock()

	s.notify("rendering")
	return results, nil
}

// finalize собирает фрагменты в артефакт, заменяет удержанный артефакт
// и жёстко освобождает дорожки потока. Вызывается из OnStop — строго
// после сигнала остановки от цикла воспроизведения.
func (s *Session) finalize(rec *encoder.Recorder, stream *surface.Stream, results chan<- Result, frames int64, started time.Time) {
	defer stream.StopTracks()

	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.mu.Unlock()

	res := Result{Frames: frames, Elapsed: time.Since(started)}

	if err := rec.Err(); err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrEncoder, err)
	} else {
		artifact, err := newArtifact(s.dir, chunks)
		if err != nil {
			res.Err = err
		} else {
			res.Artifact = artifact
			s.mu.Lock()
			// Новый артефакт вытесняет предыдущий: сперва освобождение.
			if s.artifact != nil {
				s.artifact.Release()
			}
			s.artifact = artifact
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.state = Idle
	s.stream = nil
	s.handle = nil
	s.rec = nil
	s.mu.Unlock()

	if res.Err != nil {
		s.notify("error")
	} else {
		s.notify("complete")
	}
	results <- res
}

// Close tears the session down: the in-flight run is cancelled, tracks
// are stopped and the retained artifact is released. Safe to call in
// any state.
func (s *Session) Close() {
	s.mu.Lock()
	handle := s.handle
	stream := s.stream
	rec := s.rec
	artifact := s.artifact
	s.handle = nil
	s.stream = nil
	s.rec = nil
	s.artifact = nil
	s.state = Idle
	s.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if rec != nil {
		rec.Abort()
	}
	if stream != nil {
		stream.StopTracks()
	}
	if artifact != nil {
		artifact.Release()
	}
	s.notify("idle")
}
