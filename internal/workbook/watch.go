package workbook

import (
	"path/filepath"
	"sync"

	"gridnerd/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher reports writes, renames and removals of one file.
// It watches the parent directory so that editors which replace the file on save
// are still seen.
type fileWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
	onTouch func(op fsnotify.Op)
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func newFileWatcher(path string, onTouch func(op fsnotify.Op)) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &fileWatcher{
		watcher: w,
		path:    abs,
		onTouch: onTouch,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins delivering events. It does not block.
func (fw *fileWatcher) Start() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return
	}
	fw.running = true
	go fw.run()
}

// Stop ends the event loop and releases the watcher.
func (fw *fileWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		_ = fw.watcher.Close()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh
	if err := fw.watcher.Close(); err != nil {
		logging.WorkbookWarn("watcher close: %v", err)
	}
}

func (fw *fileWatcher) run() {
	defer close(fw.doneCh)
	for {
		select {
		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.WorkbookDebug("watch: %s %s", event.Op, event.Name)
			fw.onTouch(event.Op)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.WorkbookWarn("watch error: %v", err)
		}
	}
}
