package studio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivlev/slidecast/internal/capture"
	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/storyboard"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Width = 64
	cfg.Height = 36
	cfg.FPS = 100
	cfg.OutputDir = t.TempDir()
	cfg.FFmpegPath = "/nonexistent/ffmpeg"
	return cfg
}

func TestSetStoryboardRebuildsTimeline(t *testing.T) {
	st := New(testConfig(t))
	defer st.Close()

	board := storyboard.New("тест")
	board.Slides[0].Duration = 4
	if err := st.SetStoryboard(board); err != nil {
		t.Fatalf("SetStoryboard failed: %v", err)
	}

	if got := st.Timeline().TotalMs; got != 4000 {
		t.Errorf("Expected 4000ms timeline, got %d", got)
	}

	// Повторная установка пересоздаёт, а не мутирует шкалу.
	board2 := storyboard.New("тест")
	board2.Slides[0].Duration = 2
	if err := st.SetStoryboard(board2); err != nil {
		t.Fatal(err)
	}
	if got := st.Timeline().TotalMs; got != 2000 {
		t.Errorf("Expected rebuilt 2000ms timeline, got %d", got)
	}
}

func TestPreviewLifecycle(t *testing.T) {
	st := New(testConfig(t))
	defer st.Close()

	if err := st.StartPreview(); err == nil {
		t.Error("Expected error previewing without a storyboard")
	}

	if err := st.SetStoryboard(storyboard.New("демо")); err != nil {
		t.Fatal(err)
	}

	var frames atomic.Int64
	st.OnPreviewFrame(func(png []byte) {
		if len(png) == 0 {
			t.Error("Empty preview frame")
		}
		frames.Add(1)
	})

	if err := st.StartPreview(); err != nil {
		t.Fatalf("StartPreview failed: %v", err)
	}
	if st.Status() != "rendering" {
		t.Errorf("Expected 'rendering' status, got %s", st.Status())
	}

	deadline := time.Now().Add(2 * time.Second)
	for frames.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if frames.Load() == 0 {
		t.Fatal("Preview produced no frames")
	}

	st.StopPreview()
	if st.Status() != "idle" {
		t.Errorf("Expected 'idle' after stop, got %s", st.Status())
	}

	// Кадру в полёте даётся завершиться, после чего счётчик замирает.
	time.Sleep(30 * time.Millisecond)
	stopped := frames.Load()
	time.Sleep(50 * time.Millisecond)
	if frames.Load() != stopped {
		t.Error("Preview frames kept arriving after StopPreview")
	}
}

func TestExportWithoutEncoderFails(t *testing.T) {
	st := New(testConfig(t))
	defer st.Close()

	if err := st.SetStoryboard(storyboard.New("демо")); err != nil {
		t.Fatal(err)
	}

	_, err := st.Export()
	if err == nil {
		t.Fatal("Expected export failure without ffmpeg")
	}
	// Флаги вернулись в состояние покоя: UI не зависает в "записи".
	if st.Session().Recording() {
		t.Error("Recording flag stuck after failed export")
	}
}

func TestExportRejectsEmptyStoryboard(t *testing.T) {
	st := New(testConfig(t))
	defer st.Close()

	if _, err := st.Export(); err != capture.ErrNoSlides {
		t.Errorf("Expected ErrNoSlides, got %v", err)
	}
	if st.Status() != "error" {
		t.Errorf("Expected 'error' status, got %s", st.Status())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	st := New(testConfig(t))
	if err := st.SetStoryboard(storyboard.New("демо")); err != nil {
		t.Fatal(err)
	}
	if err := st.StartPreview(); err != nil {
		t.Fatal(err)
	}

	st.Close()
	st.Close()

	if err := st.StartPreview(); err == nil {
		t.Error("Expected error starting preview on a closed studio")
	}
}
