package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is the finished, assembled video result. The handle owns the
// backing file: Release removes it, and runs at most once.
type Artifact struct {
	ID        uuid.UUID
	Path      string
	Size      int64
	CreatedAt time.Time

	releaseOnce sync.Once
}

// newArtifact собирает фрагменты кодировщика в один файл в каталоге dir.
func newArtifact(dir string, fragments [][]byte) (*Artifact, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	id := uuid.New()
	path := filepath.Join(dir, id.String()+".webm")

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	var size int64
	for _, frag := range fragments {
		n, err := f.Write(frag)
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		size += int64(n)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}

	return &Artifact{
		ID:        id,
		Path:      path,
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}

// Filename — имя для сохранения на стороне UI; расширение фиксировано
// контейнером.
func (a *Artifact) Filename() string {
	return fmt.Sprintf("slidecast_%s.webm", a.CreatedAt.Format("2006-01-02_15-04-05"))
}

// Open returns a reader over the artifact bytes.
func (a *Artifact) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Release deletes the backing file. Exactly once; later calls no-op.
func (a *Artifact) Release() {
	a.releaseOnce.Do(func() {
		os.Remove(a.Path)
	})
}
