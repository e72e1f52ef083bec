package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a Watcher waits for a burst of events on the
// same path to settle.
const DefaultDebounce = 500 * time.Millisecond

// ChangeKind describes what happened to a plugin library on disk.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is a debounced notification about one plugin library.
type Change struct {
	Path string
	Kind ChangeKind
}

// Watcher reports plugin libraries appearing, changing or disappearing under
// a set of search roots.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   logrus.FieldLogger
	debounce time.Duration
	changes  chan Change
	goos     string

	mu      sync.Mutex
	pending map[string]*pendingChange
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts watching roots and their subdirectories. Missing roots
// are ignored. Close must be called to release the underlying watcher.
func NewWatcher(ctx context.Context, logger logrus.FieldLogger, debounce time.Duration, roots ...string) (*Watcher, error) {
	return newWatcher(ctx, logger, debounce, runtime.GOOS, roots)
}

func newWatcher(ctx context.Context, logger logrus.FieldLogger, debounce time.Duration, goos string, roots []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = discardLogger()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  fw,
		logger:   logger,
		debounce: debounce,
		changes:  make(chan Change, 64),
		goos:     goos,
		pending:  make(map[string]*pendingChange),
		done:     make(chan struct{}),
	}

	watched := 0
	for _, root := range roots {
		n, err := w.addTree(root)
		if err != nil {
			fw.Close()
			return nil, err
		}
		watched += n
	}
	logger.WithFields(logrus.Fields{
		"roots":       len(roots),
		"directories": watched,
	}).Info("Watching plugin search paths")

	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

// Changes delivers debounced changes. The channel is closed by Close.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Close stops the watcher. Pending debounced changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	close(w.changes)
	return err
}

func (w *Watcher) addTree(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			w.logger.WithError(err).WithField("path", path).Warn("Cannot watch directory")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.isBundle(d.Name()) {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %q: %w", path, err)
		}
		count++
		return nil
	})
	return count, err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// New subdirectories need watching too, unless they are bundles.
	if event.Has(fsnotify.Create) && !w.isBundle(event.Name) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).Warn("Cannot watch new directory")
			}
			return
		}
	}

	path, ok := pluginRoot(w.goos, event.Name)
	if !ok {
		return
	}

	var kind ChangeKind
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = ChangeRemoved
	case event.Has(fsnotify.Create):
		kind = ChangeCreated
	case event.Has(fsnotify.Write):
		kind = ChangeModified
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, exists := w.pending[path]; exists {
		p.timer.Stop()
		// A write right after creation is still a creation.
		if p.kind == ChangeCreated && kind == ChangeModified {
			kind = ChangeCreated
		}
	}
	w.pending[path] = &pendingChange{
		kind:  kind,
		timer: time.AfterFunc(w.debounce, func() {
			w.emit(Change{Path: path, Kind: settle(path, kind)})
		}),
	}
}

type pendingChange struct {
	kind  ChangeKind
	timer *time.Timer
}

func (w *Watcher) emit(c Change) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, c.Path)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	w.logger.WithFields(logrus.Fields{
		"path":   c.Path,
		"change": c.Kind.String(),
	}).Debug("Plugin library changed")

	select {
	case w.changes <- c:
	case <-w.done:
	}
}

// settle corrects the kind of a burst against what is on disk once it ends:
// a rename away removes the library, a rename onto it creates it.
func settle(path string, kind ChangeKind) ChangeKind {
	_, err := os.Stat(path)
	switch {
	case err != nil:
		return ChangeRemoved
	case kind == ChangeRemoved:
		return ChangeCreated
	default:
		return kind
	}
}

func (w *Watcher) isBundle(name string) bool {
	return w.goos == "darwin" && IsPluginPath(filepath.Base(name))
}

// pluginRoot maps a path to the plugin library it belongs to. On darwin,
// writes inside a bundle are attributed to the bundle.
func pluginRoot(goos, path string) (string, bool) {
	if goos != "darwin" {
		return path, IsPluginPath(filepath.Base(path))
	}
	for p := path; ; {
		if IsPluginPath(filepath.Base(p)) {
			return p, true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", false
		}
		p = parent
	}
}
