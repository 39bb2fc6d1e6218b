package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/plugin"
	"github.com/ayusman/spotter/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage cue hook bindings",
		Long:  "Bind cue plugins to rep_completed, rep_failed and session_completed events.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List hook bindings and discovered plugins",
		Args:  cobra.NoArgs,
		Run:   runHooksList,
	}

	add := &cobra.Command{
		Use:   "add <event> <plugin>",
		Short: "Bind a plugin to an event",
		Args:  cobra.ExactArgs(2),
		Run:   runHooksAdd,
	}
	add.Flags().String("config", "", "Plugin config as a JSON object")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a hook binding",
		Args:  cobra.ExactArgs(1),
		Run:   runHooksRm,
	}

	cmd.AddCommand(list, add, rm)
	RootCmd.AddCommand(cmd)
}

type hookItem struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Plugin  string          `json:"plugin"`
	Config  json.RawMessage `json:"config"`
	Enabled bool            `json:"enabled"`
}

func runHooksList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	hooks, err := s.Hooks().List()
	if err != nil {
		exitErr("list", err)
	}

	mgr := plugin.NewManager(cfg.GetHooksDir())
	if err := mgr.Discover(); err != nil {
		exitErr("discover", err)
	}

	out := cmd.OutOrStdout()
	if formatFlag == "text" {
		for _, h := range hooks {
			fmt.Fprintf(out, "%s  %-17s %s (enabled: %t)\n", h.ID, h.Event, h.PluginName, h.Enabled)
		}
		for _, p := range mgr.List() {
			fmt.Fprintf(out, "plugin %s %s: %v\n", p.Manifest.Name, p.Manifest.Version, p.Manifest.Events)
		}
		return
	}

	items := make([]hookItem, 0, len(hooks))
	for _, h := range hooks {
		items = append(items, hookItem{ID: h.ID, Event: h.Event, Plugin: h.PluginName, Config: h.Config, Enabled: h.Enabled})
	}
	names := make([]string, 0)
	for _, p := range mgr.List() {
		names = append(names, p.Manifest.Name)
	}
	printJSON(out, map[string]interface{}{"hooks": items, "plugins": names})
}

func runHooksAdd(cmd *cobra.Command, args []string) {
	rawConfig, _ := cmd.Flags().GetString("config")

	event := plugin.Event(args[0])
	if !event.Valid() {
		exitErr("add", fmt.Errorf("unknown event %q (want one of %v)", args[0], plugin.Events))
	}

	var config json.RawMessage
	if rawConfig != "" {
		if !json.Valid([]byte(rawConfig)) {
			exitErr("add", fmt.Errorf("--config is not valid JSON"))
		}
		config = json.RawMessage(rawConfig)
	}

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	h := &store.Hook{Event: string(event), PluginName: args[1], Config: config, Enabled: true}
	if err := s.Hooks().Create(h); err != nil {
		exitErr("add", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.ID)
}

func runHooksRm(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.Hooks().Delete(args[0]); err != nil {
		exitErr("rm", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
}
