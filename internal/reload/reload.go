// Package reload watches every file read to build the current RouteTable,
// debounces bursts of filesystem events, and atomically swaps in a
// freshly-rebuilt table on success. A failed rebuild leaves the previous
// table live.
package reload

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/rustyjsonserver/rustyjsonserver/internal/config"
)

// Logger is the sink for rebuild failures and watcher errors — the same
// shape as rjs.Logger, kept separate so this package doesn't need to
// import internal/rjs just for one interface.
type Logger interface {
	Print(args ...interface{})
}

// atomicTable is a thin wrapper around atomic.Pointer[config.RouteTable]
// so readers at request entry always see either the old table or the new
// one, never a partially-built one.
type atomicTable struct {
	p atomic.Pointer[config.RouteTable]
}

func (a *atomicTable) store(t *config.RouteTable) { a.p.Store(t) }
func (a *atomicTable) load() *config.RouteTable    { return a.p.Load() }

// debounce is the quiescence window between the last filesystem event and
// a rebuild attempt.
const debounce = 150 * time.Millisecond

// Coordinator owns the live RouteTable and the watcher that keeps it
// current.
type Coordinator struct {
	rootPath string
	logger   Logger

	table atomicTable

	watcher *fsnotify.Watcher
	group   singleflight.Group

	mu         sync.Mutex
	watched    map[string]bool
	contentSum uint64

	stop chan struct{}
}

// New performs an initial config build and starts watching every file it
// read. The Coordinator must be started with Run to begin reacting to
// changes; callers that pass --no-watch simply never call Run.
func New(rootPath string, logger Logger) (*Coordinator, error) {
	table, files, err := config.Load(rootPath)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: failed to build watcher: %w", err)
	}

	c := &Coordinator{
		rootPath: rootPath,
		logger:   logger,
		watcher:  w,
		watched:  map[string]bool{},
		stop:     make(chan struct{}),
	}
	c.table.store(table)
	c.applyWatchSet(files)
	c.contentSum = c.hashFiles(files)
	return c, nil
}

// RouteTable returns the currently live table. Safe to call concurrently
// with Run and with rebuilds.
func (c *Coordinator) RouteTable() *config.RouteTable {
	return c.table.load()
}

// Run drains watcher events, debouncing bursts before triggering a
// rebuild, until Stop is called. Intended to run in its own goroutine: a
// single background worker owns file-system events and the rebuild
// pipeline.
func (c *Coordinator) Run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case _, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			c.rebuild()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logf("reload: watcher error: %v", err)
		case <-c.stop:
			return
		}
	}
}

// Stop shuts down the watch loop and releases the underlying watcher.
func (c *Coordinator) Stop() {
	close(c.stop)
	c.watcher.Close()
}

// rebuild re-runs the config loader end to end. A no-op filesystem write
// (same bytes rewritten) is detected via a content hash of every watched
// file and skipped without even attempting a config build. Concurrent
// debounce fires collapse onto a single in-flight rebuild via
// singleflight.
func (c *Coordinator) rebuild() {
	c.mu.Lock()
	files := make([]string, 0, len(c.watched))
	for f := range c.watched {
		files = append(files, f)
	}
	prevSum := c.contentSum
	c.mu.Unlock()

	if c.hashFiles(files) == prevSum {
		return
	}

	_, err, _ := c.group.Do("rebuild", func() (interface{}, error) {
		table, newFiles, err := config.Load(c.rootPath)
		if err != nil {
			return nil, err
		}
		c.applyWatchSet(newFiles)
		c.mu.Lock()
		c.contentSum = c.hashFiles(newFiles)
		c.mu.Unlock()
		c.table.store(table)
		return table, nil
	})
	if err != nil {
		c.logf("reload: rebuild of %s failed, keeping previous route table: %v", c.rootPath, err)
	}
}

// applyWatchSet reconciles the watcher's subscriptions with files, adding
// newly-surfaced files and dropping ones no longer part of the config.
func (c *Coordinator) applyWatchSet(files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]bool, len(files))
	for _, f := range files {
		next[f] = true
		if !c.watched[f] {
			if err := c.watcher.Add(f); err != nil {
				c.logf("reload: failed to watch %s: %v", f, err)
			}
		}
	}
	for f := range c.watched {
		if !next[f] {
			c.watcher.Remove(f)
		}
	}
	c.watched = next
}

// hashFiles digests every file's path and content in sorted order, so an
// unordered file set (map iteration, a reordered config read) still
// yields a stable sum for unchanged content.
func (c *Coordinator) hashFiles(files []string) uint64 {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	h := xxhash.New()
	for _, f := range sorted {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		h.Write([]byte(f))
		h.Write(data)
	}
	return h.Sum64()
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Print(fmt.Sprintf(format, args...))
	}
}
