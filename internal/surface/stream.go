package surface

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	"github.com/ivlev/slidecast/internal/system"
)

// ErrStreamClosed возвращается при записи кадра в остановленный поток.
var ErrStreamClosed = fmt.Errorf("поток кадров остановлен")

// Track is one media track of a capturable stream. Stopping is
// idempotent: the underlying resource is released exactly once.
type Track struct {
	Kind    string
	stopped atomic.Bool
}

func (t *Track) Stop() {
	t.stopped.Store(true)
}

func (t *Track) Stopped() bool {
	return t.stopped.Load()
}

// Stream delivers frame snapshots from a canvas to a single consumer
// (the streaming encoder). Frames arrive in paint order; when the
// consumer falls behind, new frames are dropped rather than blocking
// the render tick.
type Stream struct {
	width  int
	height int
	fps    int

	mu     sync.Mutex
	frames chan *image.RGBA
	closed bool

	tracks  []*Track
	dropped atomic.Int64
}

func newStream(width, height, fps int) *Stream {
	return &Stream{
		width:  width,
		height: height,
		fps:    fps,
		frames: make(chan *image.RGBA, fps),
		tracks: []*Track{{Kind: "video"}},
	}
}

func (s *Stream) Width() int  { return s.width }
func (s *Stream) Height() int { return s.height }
func (s *Stream) FPS() int    { return s.fps }

// Tracks enumerates the underlying tracks.
func (s *Stream) Tracks() []*Track {
	return s.tracks
}

// WriteFrame snapshots the image into a pooled buffer and queues it for
// the consumer. A full queue drops the frame (one skipped frame is not
// an error); a closed stream reports ErrStreamClosed.
func (s *Stream) WriteFrame(src *image.RGBA) error {
	if src == nil {
		return ErrStreamClosed
	}

	snap := system.GetFrame(src.Bounds())
	draw.Draw(snap, snap.Bounds(), src, src.Bounds().Min, draw.Src)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		system.PutFrame(snap)
		return ErrStreamClosed
	}

	select {
	case s.frames <- snap:
		return nil
	default:
		system.PutFrame(snap)
		s.dropped.Add(1)
		return nil
	}
}

// Frames is the consumer side of the stream. The channel closes when
// the stream stops.
func (s *Stream) Frames() <-chan *image.RGBA {
	return s.frames
}

// Dropped reports how many frames were discarded because the consumer
// was behind.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops frame delivery. Safe to call multiple times and
// concurrently with WriteFrame.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}

// StopTracks performs the hard resource release: every track is stopped
// and the stream is closed.
func (s *Stream) StopTracks() {
	for _, t := range s.tracks {
		t.Stop()
	}
	s.Close()
}

// Live reports whether all tracks are still running.
func (s *Stream) Live() bool {
	for _, t := range s.tracks {
		if t.Stopped() {
			return false
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}
