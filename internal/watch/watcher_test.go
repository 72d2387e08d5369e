// Package watch re-runs the batch pipeline when feature documents
// change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/thebtf/kitforge/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testDebounce = 50 * time.Millisecond
	waitFor      = 5 * time.Second
	tick         = 10 * time.Millisecond
)

// WatcherSuite is a test suite for the input directory watcher.
type WatcherSuite struct {
	suite.Suite
	cfg      *config.Config
	inputDir string
	outDir   string
	runs     atomic.Int64
}

func (s *WatcherSuite) SetupTest() {
	s.cfg = config.Default()
	s.cfg.Watch.Debounce = config.Duration(testDebounce)
	s.inputDir = s.T().TempDir()
	s.outDir = s.T().TempDir()
	s.runs.Store(0)
}

func TestWatcherSuite(t *testing.T) {
	suite.Run(t, new(WatcherSuite))
}

// startWatcher builds and starts a watcher, deferring shutdown to test
// cleanup. Stop and Wait are both idempotent, so tests that shut down
// early stay safe.
func (s *WatcherSuite) startWatcher(run RunFunc) *Watcher {
	w, err := New(s.cfg, s.inputDir, s.outDir, run)
	s.Require().NoError(err)
	s.Require().NoError(w.Start(context.Background()))
	s.T().Cleanup(func() {
		w.Stop()
		w.Wait()
	})
	return w
}

func (s *WatcherSuite) countRuns(context.Context) error {
	s.runs.Add(1)
	return nil
}

func (s *WatcherSuite) writeDoc(name string) string {
	path := filepath.Join(s.inputDir, name)
	s.Require().NoError(os.WriteFile(path, []byte(`{"sample_id":"x"}`), 0o644))
	return path
}

func (s *WatcherSuite) TestWriteTriggersOneRun() {
	s.startWatcher(s.countRuns)

	s.writeDoc("kick.json")

	s.Eventually(func() bool { return s.runs.Load() == 1 }, waitFor, tick)

	// No further events, no further runs.
	time.Sleep(4 * testDebounce)
	s.Equal(int64(1), s.runs.Load())
}

func (s *WatcherSuite) TestBurstCoalescesIntoOneRun() {
	s.cfg.Watch.Debounce = config.Duration(150 * time.Millisecond)
	s.startWatcher(s.countRuns)

	s.writeDoc("kick.json")
	s.writeDoc("snare.json")
	s.writeDoc("hat.json")
	s.writeDoc("clap.json")
	s.writeDoc("ride.json")

	s.Eventually(func() bool { return s.runs.Load() == 1 }, waitFor, tick)

	time.Sleep(450 * time.Millisecond)
	s.Equal(int64(1), s.runs.Load())
}

func (s *WatcherSuite) TestNewBurstCancelsInFlightRun() {
	var started, cancelled atomic.Int64
	blocking := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		cancelled.Add(1)
		return ctx.Err()
	}
	s.startWatcher(blocking)

	s.writeDoc("first.json")
	s.Eventually(func() bool { return started.Load() == 1 }, waitFor, tick)

	s.writeDoc("second.json")
	s.Eventually(func() bool {
		return started.Load() == 2 && cancelled.Load() >= 1
	}, waitFor, tick)
}

func (s *WatcherSuite) TestStopCancelsInFlightRun() {
	var started, cancelled atomic.Int64
	blocking := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		cancelled.Add(1)
		return ctx.Err()
	}
	w := s.startWatcher(blocking)

	s.writeDoc("kick.json")
	s.Eventually(func() bool { return started.Load() == 1 }, waitFor, tick)

	w.Stop()
	w.Wait()

	s.Equal(int64(1), cancelled.Load())
}

func (s *WatcherSuite) TestRemoveTriggersRun() {
	path := s.writeDoc("kick.json")
	s.startWatcher(s.countRuns)

	s.Require().NoError(os.Remove(path))

	s.Eventually(func() bool { return s.runs.Load() == 1 }, waitFor, tick)
}

func (s *WatcherSuite) TestNonDocumentFilesIgnored() {
	s.startWatcher(s.countRuns)

	s.Require().NoError(os.WriteFile(filepath.Join(s.inputDir, "notes.txt"), []byte("x"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.inputDir, "kick.json.tmp"), []byte("x"), 0o644))

	time.Sleep(5 * testDebounce)
	s.Equal(int64(0), s.runs.Load())
}

func (s *WatcherSuite) TestNewSubdirectoryIsWatched() {
	s.startWatcher(s.countRuns)

	sub := filepath.Join(s.inputDir, "percussion")
	s.Require().NoError(os.Mkdir(sub, 0o755))

	// Give the loop a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	s.Require().NoError(os.WriteFile(filepath.Join(sub, "shaker.json"), []byte("{}"), 0o644))

	s.Eventually(func() bool { return s.runs.Load() >= 1 }, waitFor, tick)
}

func (s *WatcherSuite) TestArtifactDirectoryIgnored() {
	s.outDir = filepath.Join(s.inputDir, "out")
	s.Require().NoError(os.Mkdir(s.outDir, 0o755))
	s.startWatcher(s.countRuns)

	s.Require().NoError(os.WriteFile(filepath.Join(s.outDir, "pools_1.json"), []byte("{}"), 0o644))

	time.Sleep(5 * testDebounce)
	s.Equal(int64(0), s.runs.Load(), "own artifacts must not retrigger runs")

	// The watcher is still alive for real input changes.
	s.writeDoc("kick.json")
	s.Eventually(func() bool { return s.runs.Load() == 1 }, waitFor, tick)
}

func (s *WatcherSuite) TestStartTwiceFails() {
	w := s.startWatcher(s.countRuns)
	s.Error(w.Start(context.Background()))
}

func (s *WatcherSuite) TestStopTwiceSafe() {
	w := s.startWatcher(s.countRuns)
	w.Stop()
	w.Stop()
	w.Wait()
}

func (s *WatcherSuite) TestContextCancelStopsLoop() {
	w, err := New(s.cfg, s.inputDir, s.outDir, s.countRuns)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(w.Start(ctx))

	cancel()
	w.Wait()
	w.Stop()
}

func TestStartMissingDirFails(t *testing.T) {
	cfg := config.Default()
	w, err := New(cfg, filepath.Join(t.TempDir(), "absent"), "", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail on a missing input directory")
	}
}

func TestIgnoredCoversArtifactTree(t *testing.T) {
	cfg := config.Default()
	w, err := New(cfg, "/kits/in", "/kits/out", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	cases := []struct {
		path string
		want bool
	}{
		{"/kits/out", true},
		{"/kits/out/pools_1.json", true},
		{"/kits/out/nested/debug_1.json", true},
		{"/kits/in/kick.json", false},
		{"/kits/outback/kick.json", false},
		{"/kits", false},
	}
	for _, tc := range cases {
		if got := w.ignored(tc.path); got != tc.want {
			t.Errorf("ignored(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestNewFallsBackToDefaultDebounce(t *testing.T) {
	cfg := config.Default()
	cfg.Watch.Debounce = 0
	w, err := New(cfg, "/kits/in", "", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()

	if w.debounce != config.DefaultWatchDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, config.DefaultWatchDebounce)
	}
}
