package watcher

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 300 * time.Millisecond

// ChangeCallback is called after the storyboard file settles.
type ChangeCallback func(path string)

// Watcher monitors a single storyboard file for edits. Events are
// debounced: editors emit bursts of writes/renames per save, and each
// burst must produce exactly one rebuild.
type Watcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	callback  ChangeCallback
	cancel    chan struct{}
}

// New starts watching the storyboard at path. Watching the containing
// directory, not the file itself: many editors save via rename, which
// would silently detach a file-level watch.
func New(path string, callback ChangeCallback) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsW.Close()
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &Watcher{
		path:      abs,
		fsWatcher: fsW,
		callback:  callback,
		cancel:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerC = timer.C
			} else {
				timer.Reset(debounceInterval)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.callback(w.path)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[!] Ошибка наблюдения за раскадровкой: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs == w.path
}

// Close stops the watch. Safe to call once.
func (w *Watcher) Close() {
	close(w.cancel)
	w.fsWatcher.Close()
}
