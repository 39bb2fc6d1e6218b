package app

import (
	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/store"
)

// hookBindings serves enabled hook rows from the store to the dispatcher.
type hookBindings struct {
	hooks *store.HookRepository
}

// StoreBindings returns a plugin.BindingSource backed by the hooks table.
func StoreBindings(s *store.Store) plugin.BindingSource {
	return hookBindings{hooks: s.Hooks()}
}

func (b hookBindings) Bindings(e plugin.Event) ([]plugin.Binding, error) {
	hooks, err := b.hooks.ListByEvent(string(e))
	if err != nil {
		return nil, err
	}

	out := make([]plugin.Binding, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, plugin.Binding{Plugin: h.PluginName, Config: h.Config})
	}
	return out, nil
}
