package plugin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/igorsilveira/clawnet/pkg/evaluator"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

type key struct {
	kind Kind
	name string
}

type Registry struct {
	mu         sync.RWMutex
	components map[key]Component
}

func NewRegistry() *Registry {
	return &Registry{components: make(map[key]Component)}
}

func (r *Registry) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[key{c.Kind(), c.Name()}] = c
}

func (r *Registry) Unregister(kind Kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.components, key{kind, name})
}

func (r *Registry) Get(kind Kind, name string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[key{kind, name}]
	if !ok {
		return nil, fmt.Errorf("unknown %s: %s", kind, name)
	}
	return c, nil
}

func (r *Registry) Action(name string) (Action, error) {
	c, err := r.Get(KindAction, name)
	if err != nil {
		return nil, err
	}
	a, ok := c.(Action)
	if !ok {
		return nil, fmt.Errorf("%s is registered as an action but does not implement it", name)
	}
	return a, nil
}

func (r *Registry) Provider(name string) (Provider, error) {
	c, err := r.Get(KindProvider, name)
	if err != nil {
		return nil, err
	}
	p, ok := c.(Provider)
	if !ok {
		return nil, fmt.Errorf("%s is registered as a provider but does not implement it", name)
	}
	return p, nil
}

func (r *Registry) Evaluator(name string) (Evaluator, error) {
	c, err := r.Get(KindEvaluator, name)
	if err != nil {
		return nil, err
	}
	e, ok := c.(Evaluator)
	if !ok {
		return nil, fmt.Errorf("%s is registered as an evaluator but does not implement it", name)
	}
	return e, nil
}

// List returns the descriptors of one kind sorted by name. An empty kind
// lists everything.
func (r *Registry) List(kind Kind) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.components))
	for k, c := range r.components {
		if kind != "" && k.kind != kind {
			continue
		}
		out = append(out, Describe(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Default registers the eight protocol actions, both providers and the three
// evaluators against coord.
func Default(coord *protocol.Coordinator, now func() time.Time) *Registry {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	r := NewRegistry()
	r.Register(&RegisterAction{Coord: coord})
	r.Register(&DiscoverAction{Coord: coord})
	r.Register(&SendMessageAction{Coord: coord})
	r.Register(&CreateChannelAction{Coord: coord})
	r.Register(&JoinChannelAction{Coord: coord})
	r.Register(&CreateEscrowAction{Coord: coord})
	r.Register(&StatsAction{Coord: coord})
	r.Register(&ReputationAction{Coord: coord})

	r.Register(&AgentStatusProvider{Coord: coord})
	r.Register(&NetworkStatsProvider{Coord: coord})

	for _, name := range evaluator.Names() {
		r.Register(&TextEvaluator{Coord: coord, Evaluator: name, Now: now})
	}
	return r
}
