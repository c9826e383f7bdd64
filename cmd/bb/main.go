package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/config"
	"github.com/mschirtzinger/beadboard/internal/logging"
	"github.com/mschirtzinger/beadboard/internal/ui"

	// Storage backends
	_ "github.com/mschirtzinger/beadboard/internal/board/kv/postgres"
	_ "github.com/mschirtzinger/beadboard/internal/board/kv/s3"
	_ "github.com/mschirtzinger/beadboard/internal/board/kv/sqlite"
)

var (
	configFile string
	verbose    bool

	cfg       *config.Config
	cfgLoader *config.Loader
	logger    = logging.Discard()
	logCloser io.Closer
)

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"driver":     "storage.driver",
	"dsn":        "storage.dsn",
	"namespace":  "storage.namespace",
	"port":       "server.port",
	"cards-dir":  "cards.dir",
	"remote-url": "settings.remote_url",
	"user":       "settings.user_id",
}

var rootCmd = &cobra.Command{
	Use:   "bb",
	Short: "beadboard - a graph board for cards",
	Long: `beadboard lays cards out on a board, connects them with edges and keeps
the layout, edges, viewport and board settings in a key-value store.

Run 'bb serve' to open the board for a renderer over WebSocket, or use the
board commands to inspect and edit it from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.Init(os.Stdout)

		cfgLoader = config.NewLoader(configFile)
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := cfgLoader.BindFlag(key, f); err != nil {
					fatalf("%v", err)
				}
			}
		}

		c, err := cfgLoader.Load()
		if err != nil {
			fatalf("%v", err)
		}
		cfg = c

		var base *log.Logger
		base, logCloser = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Verbose:    verbose,
		})
		if verbose || cfg.Log.File != "" {
			logger = base
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "board", Title: "Board Commands:"},
		&cobra.Group{ID: "settings", Title: "Settings Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default .beadboard/bb.toml)")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver (sqlite, postgres, s3, file, memory)")
	rootCmd.PersistentFlags().String("dsn", "", "Storage data source name")
	rootCmd.PersistentFlags().String("namespace", "", "Board namespace within the store")
	rootCmd.PersistentFlags().String("cards-dir", "", "Cards directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
