// Package manifest imports YAML plugin files that instantiate one of the
// compiled-in plugin kinds, optionally overriding its name, aliases and
// permission level.
//
//	kind: ping
//	aliases: [p]
//	perm_level: Moderator
//	options:
//	  greeting: hello
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/keshon/guild-warden/internal/plugin"
)

// Extensions handled by the importer.
var Extensions = []string{".yaml", ".yml"}

// Manifest is the decoded YAML file.
type Manifest struct {
	Kind        string         `yaml:"kind"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Aliases     []string       `yaml:"aliases"`
	PermLevel   string         `yaml:"perm_level"`
	Enabled     *bool          `yaml:"enabled"`
	GuildOnly   *bool          `yaml:"guild_only"`
	Options     map[string]any `yaml:"options"`

	// Path is the file the manifest was read from.
	Path string `yaml:"-"`
}

// ApplyCommand overlays the manifest's overrides on a command's defaults.
func (m *Manifest) ApplyCommand(help *plugin.Help, conf *plugin.Conf) {
	if m.Name != "" {
		help.Name = m.Name
	}
	if m.Description != "" {
		help.Description = m.Description
	}
	if m.Category != "" {
		help.Category = m.Category
	}
	if m.Aliases != nil {
		conf.Aliases = append([]string(nil), m.Aliases...)
	}
	if m.PermLevel != "" {
		conf.PermLevel = m.PermLevel
	}
	if m.Enabled != nil {
		conf.Enabled = *m.Enabled
	}
	if m.GuildOnly != nil {
		conf.GuildOnly = *m.GuildOnly
	}
	if len(m.Options) > 0 {
		if conf.Extra == nil {
			conf.Extra = make(map[string]any, len(m.Options))
		}
		for k, v := range m.Options {
			conf.Extra[k] = v
		}
	}
}

// String returns the named option, or def when unset or not a string.
func (m *Manifest) String(key, def string) string {
	if s, ok := m.Options[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Factory builds a plugin instance from a manifest. It returns a
// plugin.Command or a plugin.Handler.
type Factory func(c plugin.Client, m *Manifest) (any, error)

// Catalog maps kinds to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a kind twice panics: kinds are
// registered from init functions and a duplicate is a programming error.
func (c *Catalog) Register(kind string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind = strings.ToLower(kind)
	if _, dup := c.factories[kind]; dup {
		panic(fmt.Sprintf("manifest: kind %q registered twice", kind))
	}
	c.factories[kind] = f
}

// Lookup returns the factory for kind.
func (c *Catalog) Lookup(kind string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[strings.ToLower(kind)]
	return f, ok
}

// Kinds returns the registered kinds, sorted.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Importer decodes manifests against a catalog.
type Importer struct {
	catalog *Catalog
}

// NewImporter returns an importer resolving kinds in catalog.
func NewImporter(catalog *Catalog) *Importer {
	return &Importer{catalog: catalog}
}

// Import reads path and checks its kind is known.
func (i *Importer) Import(path string) (plugin.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Kind == "" {
		return nil, fmt.Errorf("manifest has no kind")
	}
	factory, ok := i.catalog.Lookup(m.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q (known: %s)", m.Kind, strings.Join(i.catalog.Kinds(), ", "))
	}
	m.Path = path
	return plugin.ModuleFunc(func(c plugin.Client) (any, error) {
		cp := m
		cp.Aliases = append([]string(nil), m.Aliases...)
		return factory(c, &cp)
	}), nil
}
