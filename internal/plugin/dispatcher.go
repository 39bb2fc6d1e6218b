package plugin

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ayusman/spotter/internal/monitoring"
)

// DefaultMaxInFlight bounds how many hook processes may run at once.
const DefaultMaxInFlight = 4

// Binding attaches a plugin to an event with plugin-specific configuration.
type Binding struct {
	Plugin string
	Config json.RawMessage
}

// BindingSource supplies user-configured bindings for an event.
type BindingSource interface {
	Bindings(e Event) ([]Binding, error)
}

// Dispatcher fires hooks for workout events in the background. Fire never
// blocks the caller; when too many hooks are already running the event is
// dropped and logged.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	source   BindingSource
	slots    chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. source may be nil, in which case only
// manifest subscriptions are used.
func NewDispatcher(m *Manager, e *Executor, source BindingSource) *Dispatcher {
	return &Dispatcher{
		manager:  m,
		executor: e,
		source:   source,
		slots:    make(chan struct{}, DefaultMaxInFlight),
	}
}

type target struct {
	plugin *Plugin
	config json.RawMessage
}

// targets merges manifest subscriptions with configured bindings. A
// configured binding overrides the manifest entry for the same plugin.
func (d *Dispatcher) targets(e Event) []target {
	var out []target
	index := make(map[string]int)

	for _, p := range d.manager.Subscribers(e) {
		index[p.Manifest.Name] = len(out)
		out = append(out, target{plugin: p})
	}

	if d.source == nil {
		return out
	}

	bindings, err := d.source.Bindings(e)
	if err != nil {
		monitoring.Logf("hooks: load bindings for %s: %v", e, err)
		return out
	}

	for _, b := range bindings {
		p, err := d.manager.Get(b.Plugin)
		if err != nil {
			monitoring.Logf("hooks: %s bound to %s: %v", b.Plugin, e, err)
			continue
		}
		if i, ok := index[b.Plugin]; ok {
			out[i].config = b.Config
			continue
		}
		index[b.Plugin] = len(out)
		out = append(out, target{plugin: p, config: b.Config})
	}

	return out
}

// Fire runs every hook for req.Event asynchronously and returns how many
// were started.
func (d *Dispatcher) Fire(req Request) int {
	started := 0
	for _, t := range d.targets(req.Event) {
		select {
		case d.slots <- struct{}{}:
		default:
			monitoring.Logf("hooks: dropping %s for %s, too many hooks running", req.Event, t.plugin.Manifest.Name)
			continue
		}

		r := req
		r.Config = t.config
		d.wg.Add(1)
		started++

		go func(p *Plugin, r Request) {
			defer d.wg.Done()
			defer func() { <-d.slots }()

			resp, err := d.executor.Execute(context.Background(), p, &r)
			if err != nil {
				monitoring.Logf("hooks: %s on %s: %v", p.Manifest.Name, r.Event, err)
				return
			}
			if !resp.Success {
				monitoring.Logf("hooks: %s on %s reported: %s", p.Manifest.Name, r.Event, resp.Error)
			}
		}(t.plugin, r)
	}
	return started
}

// Wait blocks until every hook started by Fire has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
