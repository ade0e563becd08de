// Package fcache caches static file contents for the serve-files handler.
//
// Entries are invalidated by directory-watch change notifications, so a
// rewritten file directly under the root is picked up on the next request
// without a TTL. Only the root directory itself is watched: entries for
// files in its subdirectories are not invalidated on change and stay cached
// until evicted or the cache is closed.
package fcache

import (
	"container/list"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/X4/lwan/core/http"
)

// Entry is one cached file.
type Entry struct {
	Path     string
	Content  []byte
	ModTime  time.Time
	MimeType string

	element *list.Element
}

// Cache is an LRU content cache over one directory tree.
type Cache struct {
	root       string
	maxEntries int
	log        hclog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	lru     *list.List

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New builds a cache rooted at dir and starts the change watcher.
func New(dir string, maxEntries int, log hclog.Logger) (*Cache, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	c := &Cache{
		root:       root,
		maxEntries: maxEntries,
		log:        log,
		entries:    make(map[string]*Entry),
		lru:        list.New(),
		watcher:    watcher,
		done:       make(chan struct{}),
	}
	go c.watch()
	return c, nil
}

// Root returns the absolute directory the cache serves from.
func (c *Cache) Root() string {
	return c.root
}

// Get returns the cached entry for an absolute path under the root,
// loading and caching it on a miss.
func (c *Cache) Get(path string) (*Entry, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.lru.MoveToFront(e.element)
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	// Load outside the lock; concurrent loaders of the same path race
	// benignly, last one wins.
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return nil, os.ErrNotExist
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Path:     path,
		Content:  content,
		ModTime:  fi.ModTime(),
		MimeType: http.MimeType(path),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[path]; ok {
		c.lru.Remove(old.element)
	}
	e.element = c.lru.PushFront(e)
	c.entries[path] = e
	for len(c.entries) > c.maxEntries {
		oldest := c.lru.Back()
		evicted := oldest.Value.(*Entry)
		c.lru.Remove(oldest)
		delete(c.entries, evicted.Path)
	}
	return e, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// watch drains directory change notifications, dropping the affected
// entries so the next Get reloads them.
func (c *Cache) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.invalidate(ev.Name)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("directory watch error", "error", err)
		case <-c.done:
			return
		}
	}
}

func (c *Cache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		c.lru.Remove(e.element)
		delete(c.entries, path)
		c.log.Debug("cache entry invalidated", "path", path)
	}
}

// Close stops the watcher and empties the cache.
func (c *Cache) Close() {
	close(c.done)
	c.watcher.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.lru.Init()
}
