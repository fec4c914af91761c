package schedplugin

import (
	"fmt"
	"sync"
)

// Registry maps a plugin name to the constructor that builds it, so a
// driver can assemble a pipeline from a list of names read out of
// configuration instead of a compiled-in list of plugin values.
type Registry struct {
	mu           sync.RWMutex
	filters      map[string]func() FilterPlugin
	scorers      map[string]func() ScorePlugin
	prefilters   map[string]func() PrefilterPlugin
	reservers    map[string]func() ReservePlugin
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		filters:    make(map[string]func() FilterPlugin),
		scorers:    make(map[string]func() ScorePlugin),
		prefilters: make(map[string]func() PrefilterPlugin),
		reservers:  make(map[string]func() ReservePlugin),
	}
}

func (r *Registry) RegisterFilter(name string, ctor func() FilterPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = ctor
}

func (r *Registry) RegisterScorer(name string, ctor func() ScorePlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scorers[name] = ctor
}

func (r *Registry) RegisterPrefilter(name string, ctor func() PrefilterPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefilters[name] = ctor
}

func (r *Registry) RegisterReserver(name string, ctor func() ReservePlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservers[name] = ctor
}

func (r *Registry) BuildFilters(names []string) ([]FilterPlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FilterPlugin, 0, len(names))
	for _, name := range names {
		ctor, ok := r.filters[name]
		if !ok {
			return nil, fmt.Errorf("filter plugin %q not registered", name)
		}
		out = append(out, ctor())
	}
	return out, nil
}

func (r *Registry) BuildReservers(names []string) ([]ReservePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ReservePlugin, 0, len(names))
	for _, name := range names {
		ctor, ok := r.reservers[name]
		if !ok {
			return nil, fmt.Errorf("reserve plugin %q not registered", name)
		}
		out = append(out, ctor())
	}
	return out, nil
}

func (r *Registry) BuildScorers(names []string) ([]ScorePlugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ScorePlugin, 0, len(names))
	for _, name := range names {
		ctor, ok := r.scorers[name]
		if !ok {
			return nil, fmt.Errorf("score plugin %q not registered", name)
		}
		out = append(out, ctor())
	}
	return out, nil
}

// NewDefaultRegistry returns a Registry pre-populated with the
// built-in plugins every scheduling framework instance needs.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterFilter(DefaultFilterName, func() FilterPlugin { return &DefaultFilter{} })
	r.RegisterFilter(DefaultHeterogeneousFilterName, func() FilterPlugin { return &DefaultHeterogeneousFilter{} })
	r.RegisterFilter(LabelAffinityFilterName, func() FilterPlugin { return NewLabelAffinityFilter(false) })
	r.RegisterFilter(LabelAffinityRelaxedFilterName, func() FilterPlugin { return NewLabelAffinityFilter(true) })
	r.RegisterScorer(DefaultScorerName, func() ScorePlugin { return &DefaultScorer{} })
	r.RegisterScorer(DefaultHeterogeneousScorerName, func() ScorePlugin { return &DefaultHeterogeneousScorer{} })
	r.RegisterReserver(DefaultReserveName, func() ReservePlugin { return &DefaultReserve{} })
	return r
}
