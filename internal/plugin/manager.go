package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ayusman/spotter/internal/monitoring"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

const manifestFile = "plugin.json"

// Manager holds the hooks found under one directory, indexed by name and
// by the events their manifests subscribe to.
type Manager struct {
	hooksDir string

	mu      sync.RWMutex
	byName  map[string]*Plugin
	sorted  []*Plugin
	byEvent map[Event][]*Plugin
}

// NewManager creates a Manager for hooksDir. Nothing is loaded until Discover.
func NewManager(hooksDir string) *Manager {
	return &Manager{
		hooksDir: hooksDir,
		byName:   make(map[string]*Plugin),
		byEvent:  make(map[Event][]*Plugin),
	}
}

// Discover replaces the loaded hooks with the valid manifests found one
// level below the hooks directory. A missing directory loads nothing.
// Invalid manifests are logged and skipped; unknown events in an otherwise
// valid manifest are dropped.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.hooksDir)
	if errors.Is(err, os.ErrNotExist) {
		m.swap(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read hooks dir: %w", err)
	}

	var found []*Plugin
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.hooksDir, entry.Name())
		p, err := loadPlugin(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			monitoring.Logf("plugin: skipping %s: %v", dir, err)
			continue
		}
		if prev, dup := seen[p.Manifest.Name]; dup {
			monitoring.Logf("plugin: skipping %s: name %q already used by %s", dir, p.Manifest.Name, prev)
			continue
		}
		seen[p.Manifest.Name] = dir
		found = append(found, p)
	}

	m.swap(found)
	return nil
}

// swap installs plugins as the loaded set and rebuilds the indexes.
func (m *Manager) swap(plugins []*Plugin) {
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	byName := make(map[string]*Plugin, len(plugins))
	byEvent := make(map[Event][]*Plugin)
	for _, p := range plugins {
		byName[p.Manifest.Name] = p
		for _, e := range p.Manifest.Events {
			byEvent[e] = append(byEvent[e], p)
		}
	}

	m.mu.Lock()
	m.byName, m.sorted, m.byEvent = byName, plugins, byEvent
	m.mu.Unlock()
}

func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestFile, err)
	}
	if err := manifest.validate(); err != nil {
		return nil, err
	}

	events := manifest.Events[:0:0]
	for _, e := range manifest.Events {
		if !e.Valid() {
			monitoring.Logf("plugin: %s ignores unknown event %q", manifest.Name, e)
			continue
		}
		if !containsEvent(events, e) {
			events = append(events, e)
		}
	}
	manifest.Events = events

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

// validate checks the fields a hook cannot run without. The executable must
// name a file inside the plugin's own directory.
func (m Manifest) validate() error {
	if m.Name == "" {
		return errors.New("manifest has no name")
	}
	if m.Executable == "" {
		return errors.New("manifest has no executable")
	}
	if filepath.IsAbs(m.Executable) {
		return fmt.Errorf("executable %q must be relative to the plugin directory", m.Executable)
	}
	if clean := filepath.Clean(m.Executable); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("executable %q escapes the plugin directory", m.Executable)
	}
	return nil
}

func containsEvent(events []Event, e Event) bool {
	for _, ev := range events {
		if ev == e {
			return true
		}
	}
	return false
}

// Get returns a loaded plugin by name, or ErrPluginNotFound.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.byName[name]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

// List returns all loaded plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Plugin(nil), m.sorted...)
}

// Subscribers returns the plugins whose manifest lists the event, sorted by name.
func (m *Manager) Subscribers(e Event) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Plugin(nil), m.byEvent[e]...)
}

// PluginDir returns the hooks directory.
func (m *Manager) PluginDir() string {
	return m.hooksDir
}
