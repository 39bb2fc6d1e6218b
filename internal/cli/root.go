// Package cli implements the spotter CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/app"
	"github.com/ayusman/spotter/internal/classify"
	"github.com/ayusman/spotter/internal/coach"
	"github.com/ayusman/spotter/internal/config"
	"github.com/ayusman/spotter/internal/exercise"
	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/store"
)

var (
	configPath string
	dbPath     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "spotter",
	Short: "Real-time squat form analysis",
	Long:  "Counts reps and checks squat form from pose landmarks. Serves a live HTTP/WebSocket API, replays recorded sessions and keeps a SQLite history.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $SPOTTER_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SPOTTER_DB, config db_path or ~/.spotter/spotter.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("SPOTTER_CONFIG")
	}
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

func getDBPath(cfg *config.Config) string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("SPOTTER_DB"); env != "" {
		return env
	}
	return cfg.GetDBPath()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.New(getDBPath(cfg))
}

// components is everything an App needs that must be released afterwards.
type components struct {
	app        *app.App
	plugins    *plugin.Manager
	classifier classify.Classifier
}

func (c *components) Close() {
	if c.classifier != nil {
		if err := c.classifier.Close(); err != nil {
			monitoring.Logf("Failed to stop classifier: %v", err)
		}
	}
}

// buildApp wires the optional classifier, coach and hooks from cfg around st.
func buildApp(cfg *config.Config, st *store.Store, withCoach, withHooks bool) (*components, error) {
	c := &components{}
	appCfg := app.Config{
		Store:      st,
		Registry:   exercise.DefaultRegistry(),
		Thresholds: cfg.Thresholds(),
		Stabilizer: cfg.StabilizerConfig(),
	}

	if sp, ok := cfg.SubprocessConfig(); ok {
		cl, err := classify.NewSubprocessClassifier(sp)
		if err != nil {
			return nil, fmt.Errorf("classifier: %w", err)
		}
		c.classifier = cl
		appCfg.Classifier = cl
		appCfg.ClassifierTimeout = cfg.GetClassifierTimeout()
		monitoring.Logf("Using classifier %s", sp.Command)
	}

	if withCoach {
		if url := cfg.GetCoachURL(); url != "" {
			appCfg.Coach = coach.NewClient(url, cfg.GetCoachTimeout())
		}
	}

	if withHooks {
		c.plugins = plugin.NewManager(cfg.GetHooksDir())
		if err := c.plugins.Discover(); err != nil {
			return nil, fmt.Errorf("discover hooks: %w", err)
		}
		var source plugin.BindingSource
		if st != nil {
			source = app.StoreBindings(st)
		}
		appCfg.Hooks = plugin.NewDispatcher(c.plugins, plugin.NewExecutor(cfg.GetHookTimeout()), source)
		monitoring.Logf("Loaded %d hook plugins from %s", len(c.plugins.List()), cfg.GetHooksDir())
	}

	c.app = app.New(appCfg)
	return c, nil
}

func printJSON(w io.Writer, v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
