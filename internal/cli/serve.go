package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/spotter/internal/monitoring"
	"github.com/ayusman/spotter/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Long:  "Serve live sessions over HTTP and WebSocket. Finished sessions are stored, sent to the coach when configured, and announced to cue hooks.",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}

	cmd.Flags().StringP("addr", "a", "", "Listen address (default: config addr or 127.0.0.1:8080)")
	cmd.Flags().String("static", "", "Directory of static files to serve at / (default: ./web if present)")
	cmd.Flags().Bool("access-log", true, "Log every HTTP request")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	staticDir, _ := cmd.Flags().GetString("static")
	accessLog, _ := cmd.Flags().GetBool("access-log")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if addr == "" {
		addr = cfg.GetAddr()
	}
	if staticDir == "" {
		staticDir = findWebDir()
	}

	st, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer st.Close()

	c, err := buildApp(cfg, st, true, true)
	if err != nil {
		exitErr("start", err)
	}
	defer c.Close()

	if staticDir != "" {
		monitoring.Logf("Serving static files from: %s", staticDir)
	}

	srv := server.New(server.Config{
		App:       c.app,
		Store:     st,
		Plugins:   c.plugins,
		StaticDir: staticDir,
		AccessLog: accessLog,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx, addr)
	c.app.Close(context.Background())
	if err != nil {
		exitErr("serve", err)
	}
}

// findWebDir returns the first of web, ../web and ~/.spotter/web that exists.
func findWebDir() string {
	for _, p := range []string{"web", "../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".spotter", "web")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}
