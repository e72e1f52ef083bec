package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Scanner walks search roots looking for plugin libraries.
type Scanner struct {
	// MaxWorkers bounds the number of roots walked at once.
	MaxWorkers int
	Logger     logrus.FieldLogger

	goos string
}

// NewScanner returns a Scanner walking at most maxWorkers roots concurrently.
func NewScanner(maxWorkers int, logger logrus.FieldLogger) *Scanner {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Scanner{MaxWorkers: maxWorkers, Logger: logger, goos: runtime.GOOS}
}

// Scan returns the sorted, de-duplicated paths of every plugin library found
// under roots. Roots that do not exist are skipped. Other walk failures are
// joined into the returned error, and the paths found so far are still
// returned.
func (s *Scanner) Scan(ctx context.Context, roots ...string) ([]string, error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.MaxWorkers)

	var (
		mu    sync.Mutex
		found []string
		errs  []error
	)

	for _, root := range roots {
		eg.Go(func() error {
			paths, err := s.walk(ctx, root)
			mu.Lock()
			found = append(found, paths...)
			if err != nil {
				errs = append(errs, err)
			}
			mu.Unlock()
			// Only cancellation stops the other walkers.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		errs = append(errs, err)
	}

	sort.Strings(found)
	found = dedupe(found)

	s.Logger.WithFields(logrus.Fields{
		"roots":     len(roots),
		"libraries": len(found),
	}).Debug("Scanned plugin search paths")

	return found, errors.Join(errs...)
}

func (s *Scanner) walk(ctx context.Context, root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.Logger.WithField("root", root).Debug("Skipping missing search path")
			return nil, nil
		}
		return nil, fmt.Errorf("search path %q: %w", root, err)
	}

	var (
		found []string
		errs  []error
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("walk %q: %w", path, err))
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path == root || !isLibrary(s.goos, d) {
			return nil
		}

		found = append(found, path)
		if d.IsDir() {
			// A bundle's contents are not separate libraries.
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return found, errors.Join(errs...)
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
