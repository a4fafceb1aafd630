// Package events is the bot's event-dispatch mechanism: platform events are
// emitted by name and delivered to every listener subscribed to that name.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Names of the platform events the bot re-emits.
const (
	Ready             = "ready"
	Message           = "message"
	MessageCreate     = "messageCreate"
	MessageUpdate     = "messageUpdate"
	MessageDelete     = "messageDelete"
	GuildCreate       = "guildCreate"
	GuildDelete       = "guildDelete"
	GuildMemberAdd    = "guildMemberAdd"
	GuildMemberRemove = "guildMemberRemove"
	ReactionAdd       = "messageReactionAdd"
)

// Listener receives the arguments of an emitted event.
type Listener func(ctx context.Context, args ...any) error

type subscription struct {
	id       uint64
	listener Listener
}

// Bus delivers events to any number of listeners per name.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	names  map[uint64]string
	logger zerolog.Logger
}

// New returns an empty bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]subscription),
		names:  make(map[uint64]string),
		logger: logger,
	}
}

// On subscribes fn to name and returns an ID for Off.
func (b *Bus) On(name string, fn Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], subscription{id: id, listener: fn})
	b.names[id] = name
	return id
}

// Off removes a subscription. It reports whether id was subscribed.
func (b *Bus) Off(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.names[id]
	if !ok {
		return false
	}
	delete(b.names, id)
	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			b.subs[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
	return true
}

// Emit calls every listener of name with args and returns how many ran.
// A failing or panicking listener is logged and does not stop the others.
func (b *Bus) Emit(ctx context.Context, name string, args ...any) int {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[name]))
	copy(subs, b.subs[name])
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.call(ctx, s.listener, args); err != nil {
			b.logger.Error().Err(err).Str("event", name).Uint64("listener", s.id).Msg("event listener failed")
		}
	}
	return len(subs)
}

func (b *Bus) call(ctx context.Context, fn Listener, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args...)
}

// Count returns the number of listeners for name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Names returns the event names that have listeners.
func (b *Bus) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs))
	for n := range b.subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
