package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlugin_Announce_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	// Requires `go build -o plugins/announce/announce ./plugins/announce`.
	pluginDir := findPluginDir("announce")
	if pluginDir == "" {
		t.Skip("announce plugin not built")
	}

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("announce")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !plug.Manifest.Handles(EventRepCompleted) {
		t.Error("announce should handle rep_completed")
	}

	executor := NewExecutor(5 * time.Second)

	resp, err := executor.Execute(context.Background(), plug, &Request{
		Event:   EventSessionCompleted,
		Reps:    1,
		Config:  json.RawMessage(`{"mute":true}`),
		Message: "ignored",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}

	var data map[string]string
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["spoken"] != "Session complete. 1 rep." {
		t.Errorf("spoken = %q", data["spoken"])
	}

	resp, err = executor.Execute(context.Background(), plug, &Request{Event: "gesture_detected"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for unknown event")
	}
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "plugin.json")); err == nil {
			return dir
		}
	}
	return ""
}
