package surface

import (
	"fmt"
	"image"
	"sync"

	"github.com/ivlev/slidecast/internal/system"
)

// ErrNoStream сигнализирует, что поверхность не может отдавать поток кадров.
var ErrNoStream = fmt.Errorf("поверхность не поддерживает захват потока")

// Canvas is a drawing surface that slides are painted onto. It can hand
// out at most one live frame stream at a time for capture.
type Canvas struct {
	mu       sync.Mutex
	frame    *image.RGBA
	width    int
	height   int
	released bool
}

func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		frame:  system.GetFrame(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}
}

// Frame returns the backing buffer painted by the current tick, or nil
// after the canvas has been released.
func (c *Canvas) Frame() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	return c.frame
}

func (c *Canvas) Width() int  { return c.width }
func (c *Canvas) Height() int { return c.height }

// Release возвращает буфер в пул. Дальнейшая отрисовка и захват невозможны.
func (c *Canvas) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	system.PutFrame(c.frame)
	c.frame = nil
}

// CreateStream opens a live stream of frame snapshots at the given rate
// hint. Fails when the canvas has been released.
func (c *Canvas) CreateStream(frameRateHint int) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrNoStream
	}
	if frameRateHint < 1 {
		frameRateHint = 1
	}
	return newStream(c.width, c.height, frameRateHint), nil
}
