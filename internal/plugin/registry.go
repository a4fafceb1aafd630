package plugin

import (
	"sort"
	"sync"
	"time"
)

// Descriptor is the in-memory record for a loaded command.
type Descriptor struct {
	Name       string
	Location   string
	Path       string
	Generation uint64
	LoadedAt   time.Time
	Command    Command
}

// Registry maps command names, and their aliases, to descriptors.
// Every mutation happens under one lock so readers never see a partial update.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Descriptor
	aliases  map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Descriptor),
		aliases:  make(map[string]string),
	}
}

// Set inserts or replaces the descriptor stored under d.Name.
func (r *Registry) Set(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropAliases(d.Name)
	r.commands[d.Name] = d
	if d.Command == nil {
		return
	}
	if conf := d.Command.Conf(); conf != nil {
		for _, a := range conf.Aliases {
			if a != "" && a != d.Name {
				r.aliases[a] = d.Name
			}
		}
	}
}

// Has reports whether a command is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.commands[name]
	return d, ok
}

// Resolve looks name up as a command name first, then as an alias.
func (r *Registry) Resolve(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.commands[name]; ok {
		return d, true
	}
	if target, ok := r.aliases[name]; ok {
		d, ok := r.commands[target]
		return d, ok
	}
	return nil, false
}

// Delete removes name and its aliases. Absent names are ignored.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropAliases(name)
	delete(r.commands, name)
}

// FindByPath returns the descriptor loaded from path.
func (r *Registry) FindByPath(path string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.commands {
		if d.Path == path {
			return d, true
		}
	}
	return nil, false
}

// All returns every descriptor, sorted by name.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	list := make([]*Descriptor, 0, len(r.commands))
	for _, d := range r.commands {
		list = append(list, d)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

func (r *Registry) dropAliases(name string) {
	for a, target := range r.aliases {
		if target == name {
			delete(r.aliases, a)
		}
	}
}
