package studio

import (
	"bytes"
	"fmt"
	"image/png"
	"sync"

	"github.com/ivlev/slidecast/internal/capture"
	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/encoder"
	"github.com/ivlev/slidecast/internal/painter"
	"github.com/ivlev/slidecast/internal/playback"
	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/surface"
	"github.com/ivlev/slidecast/internal/timeline"
)

// Studio is the single owner of playback and capture sessions. All
// session starts go through it, so there is never ambient global state:
// starting preview cancels the previous preview, capture is rejected
// while one is active, and Close releases everything exactly once.
type Studio struct {
	cfg *config.Config

	mu      sync.Mutex
	board   *storyboard.Storyboard
	tl      timeline.Timeline
	canvas  *surface.Canvas
	loop    *playback.Loop
	preview *playback.Handle
	pnt     *painter.Painter

	session *capture.Session
	status  string
	notify  func(state string)
	frames  func(png []byte)

	closeOnce sync.Once
}

// New creates a studio around an empty storyboard.
func New(cfg *config.Config) *Studio {
	st := &Studio{
		cfg:    cfg,
		canvas: surface.NewCanvas(cfg.Width, cfg.Height),
		loop:   playback.NewLoop(cfg.FPS),
		status: "idle",
		notify: func(string) {},
		frames: func([]byte) {},
	}

	service := &encoder.Service{Path: cfg.FFmpegPath, Threads: cfg.Threads}
	st.session = capture.NewSession(service, cfg.OutputDir, st.setStatus)
	return st
}

// OnStatus registers the textual status consumer (display only).
func (st *Studio) OnStatus(fn func(state string)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if fn != nil {
		st.notify = fn
	}
}

// OnPreviewFrame registers the consumer of encoded preview frames.
func (st *Studio) OnPreviewFrame(fn func(png []byte)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if fn != nil {
		st.frames = fn
	}
}

func (st *Studio) setStatus(state string) {
	st.mu.Lock()
	st.status = state
	fn := st.notify
	st.mu.Unlock()
	fn(state)
}

// Status returns the last published textual state.
func (st *Studio) Status() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

// SetStoryboard replaces the deck and rebuilds the timeline. The
// timeline is recomputed, never mutated in place; a running preview is
// restarted over the new timeline.
func (st *Studio) SetStoryboard(board *storyboard.Storyboard) error {
	if board == nil {
		return fmt.Errorf("пустая раскадровка")
	}
	board.Normalize()

	pnt, err := painter.New(st.cfg.Width, st.cfg.Height, board.Link)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.board = board
	st.tl = timeline.Build(board.Slides)
	st.pnt = pnt
	wasPreviewing := st.preview != nil
	st.mu.Unlock()

	if wasPreviewing {
		return st.StartPreview()
	}
	return nil
}

// Storyboard returns the current deck (shared snapshot, do not mutate).
func (st *Studio) Storyboard() *storyboard.Storyboard {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.board
}

// Timeline returns the current flattened timeline.
func (st *Studio) Timeline() timeline.Timeline {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tl
}

// StartPreview runs the looping playback over the current timeline.
// Any prior preview run is superseded by the loop's generation bump.
func (st *Studio) StartPreview() error {
	st.mu.Lock()
	board := st.board
	tl := st.tl
	pnt := st.pnt
	canvas := st.canvas
	frames := st.frames
	recording := st.session.Recording()
	st.mu.Unlock()

	if canvas == nil {
		return fmt.Errorf("студия закрыта")
	}
	if board == nil || len(board.Slides) == 0 {
		return fmt.Errorf("раскадровка пуста, предпросмотр невозможен")
	}
	if recording {
		return fmt.Errorf("идёт запись, предпросмотр недоступен")
	}

	slides := board.Slides
	handle := st.loop.Start(tl, playback.Looping, func(index int, progress float64) error {
		if index >= len(slides) {
			return fmt.Errorf("нет слайда %d", index)
		}
		frame := canvas.Frame()
		if frame == nil {
			return fmt.Errorf("поверхность не готова")
		}
		pnt.Paint(frame, slides[index], progress)

		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			return err
		}
		frames(buf.Bytes())
		return nil
	}, nil)

	st.mu.Lock()
	st.preview = handle
	st.mu.Unlock()
	st.setStatus("rendering")
	return nil
}

// StopPreview cancels the looping playback, if any.
func (st *Studio) StopPreview() {
	st.mu.Lock()
	handle := st.preview
	st.preview = nil
	st.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	st.setStatus("idle")
}

// Export runs a one-shot capture of the current storyboard. The preview
// loop is cancelled first: one scheduling consumer per surface.
func (st *Studio) Export() (<-chan capture.Result, error) {
	st.mu.Lock()
	board := st.board
	tl := st.tl
	canvas := st.canvas
	handle := st.preview
	st.preview = nil
	st.mu.Unlock()

	if canvas == nil {
		return nil, fmt.Errorf("студия закрыта")
	}
	if board == nil || len(board.Slides) == 0 {
		st.setStatus("error")
		return nil, capture.ErrNoSlides
	}
	if handle != nil {
		handle.Cancel()
	}

	return st.session.Start(tl, board, canvas, st.cfg.FPS, st.cfg.TimesliceMs)
}

// Session exposes the capture session for read-only inspection.
func (st *Studio) Session() *capture.Session {
	return st.session
}

// Artifact returns the retained export result, if any.
func (st *Studio) Artifact() *capture.Artifact {
	return st.session.Artifact()
}

// Close tears down the studio: preview cancelled, capture resources and
// the retained artifact released, the canvas returned to the pool.
func (st *Studio) Close() {
	st.closeOnce.Do(func() {
		st.StopPreview()
		st.session.Close()

		st.mu.Lock()
		canvas := st.canvas
		st.canvas = nil
		st.mu.Unlock()
		if canvas != nil {
			canvas.Release()
		}
	})
}
