package encoder

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/slidecast/internal/surface"
	"github.com/ivlev/slidecast/internal/system"
)

// Recorder consumes the live frame stream and emits compressed data
// fragments incrementally, like a streaming media recorder: register
// OnData/OnStop, call Start, feed the stream, call Stop. The stop
// callback fires only after the process has drained its output, so
// every fragment is delivered before finalization.
type Recorder struct {
	stream *surface.Stream
	format Format

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr bytes.Buffer

	mu      sync.Mutex
	onData  func([]byte)
	onStop  func()
	started bool

	stopOnce sync.Once
	runErr   error
}

// Create binds a recorder to the stream and launches the ffmpeg
// process. A launch failure is synchronous: no goroutines are started
// and the pipes are closed before the error is returned.
func (s *Service) Create(stream *surface.Stream, format *Format) (*Recorder, error) {
	if stream == nil || !stream.Live() {
		return nil, fmt.Errorf("поток кадров недоступен для кодирования")
	}

	chosen := DefaultFormat
	if format != nil {
		chosen = *format
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", stream.Width(), stream.Height()),
		"-framerate", fmt.Sprintf("%d", stream.FPS()),
		"-i", "-",
	}
	if chosen.Codec != "" {
		args = append(args, "-c:v", chosen.Codec)
		switch chosen.Codec {
		case "libvpx-vp9", "libvpx":
			// Потоковый режим: скорость важнее степени сжатия.
			args = append(args, "-deadline", "realtime", "-cpu-used", "4", "-b:v", "2M")
		}
	}
	if s.Threads > 0 {
		args = append(args, "-threads", fmt.Sprintf("%d", s.Threads))
	}
	args = append(args, "-f", chosen.Muxer, "pipe:1")

	cmd := exec.Command(s.Path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	r := &Recorder{
		stream: stream,
		format: chosen,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
	}
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return r, nil
}

// Format reports the negotiated format actually in use.
func (r *Recorder) Format() Format {
	return r.format
}

// OnData registers the fragment callback. Fragments arrive in encode
// order from a single goroutine.
func (r *Recorder) OnData(fn func([]byte)) {
	r.mu.Lock()
	r.onData = fn
	r.mu.Unlock()
}

// OnStop registers the finalization callback.
func (r *Recorder) OnStop(fn func()) {
	r.mu.Lock()
	r.onStop = fn
	r.mu.Unlock()
}

// Start launches the frame pump and the fragment reader. Fragments are
// cut roughly on the timeslice cadence.
func (r *Recorder) Start(timesliceMs int) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("кодировщик уже запущен")
	}
	r.started = true
	r.mu.Unlock()

	if timesliceMs < 1 {
		timesliceMs = 250
	}
	timeslice := time.Duration(timesliceMs) * time.Millisecond

	var g errgroup.Group

	// Насос кадров: сырые RGBA в stdin ffmpeg, буферы — обратно в пул.
	g.Go(func() error {
		defer r.stdin.Close()
		for frame := range r.stream.Frames() {
			_, err := r.stdin.Write(frame.Pix)
			system.PutFrame(frame)
			if err != nil {
				// ffmpeg умер — дочитываем канал, чтобы не потерять буферы.
				for leftover := range r.stream.Frames() {
					system.PutFrame(leftover)
				}
				return fmt.Errorf("write raw error: %w", err)
			}
		}
		return nil
	})

	// Читатель фрагментов: нарезает stdout по тайм-слайсам.
	g.Go(func() error {
		buf := make([]byte, 64*1024)
		var pending []byte
		lastFlush := time.Now()

		flush := func() {
			if len(pending) == 0 {
				return
			}
			r.mu.Lock()
			fn := r.onData
			r.mu.Unlock()
			if fn != nil {
				fragment := make([]byte, len(pending))
				copy(fragment, pending)
				fn(fragment)
			}
			pending = pending[:0]
			lastFlush = time.Now()
		}

		for {
			n, err := r.stdout.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				if time.Since(lastFlush) >= timeslice {
					flush()
				}
			}
			if err != nil {
				flush()
				if err == io.EOF {
					return nil
				}
				return err
			}
		}
	})

	go func() {
		err := g.Wait()
		if werr := r.cmd.Wait(); err == nil && werr != nil {
			err = fmt.Errorf("ffmpeg wait error: %v, log: %s", werr, r.stderr.String())
		}

		r.mu.Lock()
		r.runErr = err
		fn := r.onStop
		r.mu.Unlock()
		if fn != nil {
			fn()
		}
	}()

	return nil
}

// Stop signals end of input. The encoder flushes asynchronously and
// then fires the OnStop callback. Idempotent.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.stream.Close()
	})
}

// Abort завершает процесс немедленно, без финализации. Для аварийного
// сворачивания сессии.
func (r *Recorder) Abort() {
	r.Stop()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
		if !started {
			// Пайплайн не запускался, некому дождаться процесса.
			go r.cmd.Wait()
		}
	}
}

// Err reports the terminal error of the encoding run, if any. Valid
// after OnStop has fired.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}
