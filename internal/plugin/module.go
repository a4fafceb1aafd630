package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoImporter is returned for files whose extension has no registered importer.
var ErrNoImporter = errors.New("no importer for file type")

// Module is an imported plugin file. Each Instantiate call constructs a new,
// independent instance (a Command or a Handler) bound to c.
type Module interface {
	Instantiate(c Client) (any, error)
}

// ModuleFunc adapts a constructor to Module.
type ModuleFunc func(c Client) (any, error)

// Instantiate calls f.
func (f ModuleFunc) Instantiate(c Client) (any, error) { return f(c) }

// Importer reads a plugin file from disk into a Module.
type Importer interface {
	Import(path string) (Module, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(path string) (Module, error)

// Import calls f.
func (f ImporterFunc) Import(path string) (Module, error) { return f(path) }

type cacheEntry struct {
	module     Module
	generation uint64
}

// Cache keeps imported modules by path, the way a runtime keeps required
// modules. Each path carries a generation counter that increases on every
// fresh import; evicting a path forces the next Import to read it again.
type Cache struct {
	mu          sync.Mutex
	importers   map[string]Importer
	entries     map[string]cacheEntry
	generations map[string]uint64
}

// NewCache returns a cache with no importers.
func NewCache() *Cache {
	return &Cache{
		importers:   make(map[string]Importer),
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]uint64),
	}
}

// Register binds an importer to a file extension such as ".lua".
func (c *Cache) Register(ext string, imp Importer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.importers[normalizeExt(ext)] = imp
}

// Handles reports whether path has a registered importer.
func (c *Cache) Handles(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.importers[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions lists the registered extensions.
func (c *Cache) Extensions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	exts := make([]string, 0, len(c.importers))
	for ext := range c.importers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Import returns the cached module for path, importing it first if needed,
// together with its generation.
func (c *Cache) Import(path string) (Module, uint64, error) {
	key := CanonicalPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.module, e.generation, nil
	}

	ext := normalizeExt(filepath.Ext(key))
	imp, ok := c.importers[ext]
	if !ok {
		return nil, 0, fmt.Errorf("%w %q", ErrNoImporter, ext)
	}

	mod, err := imp.Import(key)
	if err != nil {
		return nil, 0, err
	}
	if mod == nil {
		return nil, 0, fmt.Errorf("importer returned no module for %s", key)
	}

	c.generations[key]++
	gen := c.generations[key]
	c.entries[key] = cacheEntry{module: mod, generation: gen}
	return mod, gen, nil
}

// Evict drops the cached module for path. It reports whether one was cached.
func (c *Cache) Evict(path string) bool {
	key := CanonicalPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Cached reports whether path currently has a cached module.
func (c *Cache) Cached(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[CanonicalPath(path)]
	return ok
}

// Generation returns how many times path has been imported.
func (c *Cache) Generation(path string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[CanonicalPath(path)]
}

// CanonicalPath is the key used for a plugin file everywhere paths are compared.
func CanonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
