package capture

import (
	"os"
	"testing"

	"github.com/ivlev/slidecast/internal/encoder"
	"github.com/ivlev/slidecast/internal/storyboard"
	"github.com/ivlev/slidecast/internal/surface"
	"github.com/ivlev/slidecast/internal/timeline"
)

// Сервис без бинаря ffmpeg: конструирование кодировщика гарантированно
// падает синхронно, что и нужно для проверки путей отказа.
func deadEncoder() *encoder.Service {
	return &encoder.Service{Path: "/nonexistent/ffmpeg"}
}

func testBoard() *storyboard.Storyboard {
	b := storyboard.New("тест")
	b.Normalize()
	return b
}

func TestStartRejectsEmptyStoryboard(t *testing.T) {
	s := NewSession(deadEncoder(), t.TempDir(), nil)
	canvas := surface.NewCanvas(32, 18)
	defer canvas.Release()

	_, err := s.Start(timeline.Timeline{TotalMs: 1}, &storyboard.Storyboard{}, canvas, 30, 100)
	if err != ErrNoSlides {
		t.Errorf("Expected ErrNoSlides, got %v", err)
	}
	if s.Recording() {
		t.Error("Rejected start must leave the session idle")
	}
}

func TestStartRejectsConcurrentCapture(t *testing.T) {
	s := NewSession(deadEncoder(), t.TempDir(), nil)
	canvas := surface.NewCanvas(32, 18)
	defer canvas.Release()

	board := testBoard()
	tl := timeline.Build(board.Slides)

	// Моделируем активную сессию: вторая попытка отклоняется без
	// побочных эффектов.
	s.mu.Lock()
	s.state = Recording
	s.mu.Unlock()

	_, err := s.Start(tl, board, canvas, 30, 100)
	if err != ErrBusy {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if s.State() != Recording {
		t.Error("Rejected start must not disturb the active session state")
	}
}

func TestStartRejectsReleasedSurface(t *testing.T) {
	var statuses []string
	s := NewSession(deadEncoder(), t.TempDir(), func(st string) {
		statuses = append(statuses, st)
	})

	canvas := surface.NewCanvas(32, 18)
	canvas.Release()

	board := testBoard()
	_, err := s.Start(timeline.Build(board.Slides), board, canvas, 30, 100)
	if err == nil {
		t.Fatal("Expected error for released surface")
	}
	if s.Recording() {
		t.Error("Recording flag must return to false after failure")
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != "unsupported" {
		t.Errorf("Expected 'unsupported' status, got %v", statuses)
	}
}

func TestEncoderFailureStopsTracksAndResetsFlags(t *testing.T) {
	s := NewSession(deadEncoder(), t.TempDir(), nil)
	canvas := surface.NewCanvas(32, 18)
	defer canvas.Release()

	board := testBoard()
	_, err := s.Start(timeline.Build(board.Slides), board, canvas, 30, 100)
	if err == nil {
		t.Fatal("Expected encoder construction failure")
	}
	if s.Recording() {
		t.Error("Recording flag must return to false on encoder failure")
	}

	// Дорожки потока, созданного неудавшейся сессией, остановлены:
	// новая сессия может открыть следующий поток на той же поверхности.
	stream, err := canvas.CreateStream(30)
	if err != nil {
		t.Fatalf("Surface unusable after failed capture: %v", err)
	}
	stream.StopTracks()
}

func TestArtifactReplacementReleasesPrevious(t *testing.T) {
	dir := t.TempDir()

	first, err := newArtifact(dir, [][]byte{[]byte("one")})
	if err != nil {
		t.Fatalf("newArtifact failed: %v", err)
	}
	second, err := newArtifact(dir, [][]byte{[]byte("two"), []byte("three")})
	if err != nil {
		t.Fatalf("newArtifact failed: %v", err)
	}

	if second.Size != 8 {
		t.Errorf("Expected assembled size 8, got %d", second.Size)
	}

	first.Release()
	first.Release() // exactly once, repeats are no-ops

	if _, err := os.Stat(first.Path); !os.IsNotExist(err) {
		t.Error("Released artifact file still exists")
	}
	if _, err := os.Stat(second.Path); err != nil {
		t.Errorf("Retained artifact missing: %v", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	s := NewSession(deadEncoder(), t.TempDir(), nil)

	artifact, err := newArtifact(s.dir, [][]byte{[]byte("data")})
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.artifact = artifact
	s.mu.Unlock()

	s.Close()
	s.Close() // teardown must tolerate repeats

	if s.Artifact() != nil {
		t.Error("Expected no retained artifact after Close")
	}
	if _, err := os.Stat(artifact.Path); !os.IsNotExist(err) {
		t.Error("Artifact file not removed on teardown")
	}
	if s.Recording() {
		t.Error("Expected idle state after Close")
	}
}
