package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/bridge"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/remote"
	"github.com/mschirtzinger/beadboard/internal/logging"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "board",
	Short:   "Serve the board to a renderer over WebSocket",
	Long: `Open the board and serve it on a WebSocket bridge.

The renderer connects to /ws, receives an init message with nodes, edges,
settings, selection and viewport, and then sends intents (connect, drop,
delete, settings_patch, ...). Changes are broadcast to every client.

Also served:
  /health          board and client status
  /metrics         Prometheus metrics
  /api/users/...   the settings record (GET, PATCH)

The board autosaves on the configured interval, after edits settle, and on
shutdown. Card files added or changed in the cards directory show up on
the board without a restart.

Example usage:
  bb serve                   # Listen on the configured port (default 8080)
  bb serve --port 9000       # Listen on a custom port`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		m := metrics.New(true)
		b := openBoard(ctx, sessionOptions{
			serve:    true,
			metrics:  m,
			notifier: notify.Log{Logger: logging.Component(logger, "notify")},
		})

		// The settings API serves the local record; a remote service
		// answers for itself.
		var api *remote.Handler
		if cfg.Settings.RemoteURL == "" {
			api = remote.NewHandler(b.remote, cfg.Settings.Token, logging.Component(logger, "api"))
		}

		bcfg := &bridge.Config{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Metrics: m,
			Logger:  logging.Component(logger, "bridge"),
		}
		if api != nil {
			bcfg.API = api
		}
		server, err := bridge.NewServer(b.Session, bcfg)
		if err != nil {
			b.fatalf("%v", err)
		}
		if err := server.Start(); err != nil {
			b.fatalf("failed to start bridge: %v", err)
		}

		addr := server.GetAddr()
		fmt.Printf("%s Board %q served on %s\n", ui.RenderAccent("🚀"), cfg.Storage.Namespace, addr)
		fmt.Printf("   WebSocket: ws://%s/ws\n", displayAddr(addr))
		fmt.Printf("   Health:    http://%s/health\n", displayAddr(addr))
		if err := b.FetchError(); err != nil {
			fmt.Printf("%s %v\n", ui.RenderWarn("⚠"), err)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		b.close()
		fmt.Printf("%s Board saved\n", ui.RenderPass("✓"))
	},
}

// displayAddr turns a wildcard listen address into one a browser can use.
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	if len(addr) > 5 && addr[:5] == "[::]:" {
		return "localhost:" + addr[5:]
	}
	return addr
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}
