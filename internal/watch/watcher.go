// Package watch re-runs the batch pipeline when feature documents
// change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/kitforge/internal/config"
)

// RunFunc executes one batch run. The watcher cancels its context when
// a newer burst of changes arrives.
type RunFunc func(ctx context.Context) error

// Watcher triggers a run whenever JSON documents under the input
// directory are created, written, renamed or removed. Event bursts are
// debounced into a single run, a fresh burst cancels a run still in
// flight, and runs never overlap.
type Watcher struct {
	inputDir string
	outDir   string
	debounce time.Duration
	run      RunFunc

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	stopped bool
}

// New builds a watcher over inputDir. Events under outDir are ignored
// so the watcher never chases its own artifacts.
func New(cfg *config.Config, inputDir, outDir string, run RunFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}

	debounce := cfg.Watch.Debounce.Std()
	if debounce <= 0 {
		debounce = config.DefaultWatchDebounce
	}
	if outDir != "" {
		outDir = filepath.Clean(outDir)
	}

	return &Watcher{
		inputDir: filepath.Clean(inputDir),
		outDir:   outDir,
		debounce: debounce,
		run:      run,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers the input directory tree and launches the watch
// loop. The loop runs until Stop is called or ctx is cancelled; Stop
// must be called to release the filesystem watcher. A watcher whose
// Start failed cannot be reused.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already started")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addRecursive(w.inputDir); err != nil {
		w.fsw.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.inputDir, err)
	}

	log.Info().
		Str("dir", w.inputDir).
		Dur("debounce", w.debounce).
		Msg("Watching for feature document changes")

	go w.loop(ctx)
	return nil
}

// Stop releases the filesystem watcher and, if the loop is running,
// signals it to exit. Safe to call more than once, started or not.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true

	close(w.stopCh)
	if err := w.fsw.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing filesystem watcher")
	}
}

// Wait blocks until the loop and any in-flight run have finished. Only
// meaningful after a successful Start.
func (w *Watcher) Wait() {
	<-w.doneCh
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
		burst  int

		runCancel context.CancelFunc
		runDone   chan struct{}
	)

	// Cancel the in-flight run and wait for it to wind down.
	cancelRun := func() {
		if runCancel == nil {
			return
		}
		runCancel()
		<-runDone
		runCancel, runDone = nil, nil
	}
	defer cancelRun()

	startRun := func() {
		cancelRun()
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		runCancel, runDone = cancel, done
		go func() {
			defer close(done)
			err := w.run(runCtx)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				log.Debug().Msg("Run cancelled by newer changes")
			default:
				log.Error().Err(err).Msg("Watch run failed")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}

			// Directories created mid-watch join the watch so
			// documents written inside them are seen.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("Cannot watch new directory")
					}
					continue
				}
			}

			if !relevantOp(event.Op) || !strings.HasSuffix(strings.ToLower(event.Name), ".json") {
				continue
			}
			burst++
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Filesystem watcher error")

		case <-timerC:
			timer, timerC = nil, nil
			log.Info().Int("events", burst).Msg("Input changed, rebuilding pools")
			burst = 0
			startRun()
		}
	}
}

// addRecursive registers root and every directory below it, skipping
// the artifact directory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// ignored reports whether path is the artifact directory or lives
// inside it.
func (w *Watcher) ignored(path string) bool {
	if w.outDir == "" {
		return false
	}
	rel, err := filepath.Rel(w.outDir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func relevantOp(op fsnotify.Op) bool {
	return op.Has(fsnotify.Create) || op.Has(fsnotify.Write) ||
		op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}
