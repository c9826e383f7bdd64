package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mschirtzinger/beadboard/internal/board/cards"
	"github.com/mschirtzinger/beadboard/internal/board/kv"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/board/metrics"
	"github.com/mschirtzinger/beadboard/internal/board/notify"
	"github.com/mschirtzinger/beadboard/internal/board/remote"
	"github.com/mschirtzinger/beadboard/internal/board/session"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
	"github.com/mschirtzinger/beadboard/internal/logging"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// openStore opens the configured kv backend. Local sqlite and file stores
// get their parent directory created.
func openStore(ctx context.Context) kv.Store {
	dsn := cfg.StorageDSN()
	switch cfg.Storage.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			fatalf("failed to create %s: %v", filepath.Dir(dsn), err)
		}
	case "file":
		if err := os.MkdirAll(dsn, 0o755); err != nil {
			fatalf("failed to create %s: %v", dsn, err)
		}
	}

	store, err := kv.Open(ctx, cfg.Storage.Driver, dsn)
	if err != nil {
		fatalf("%v", err)
	}
	return store
}

// settingsRemote returns the HTTP client when a remote URL is configured
// and otherwise keeps the settings record in store.
func settingsRemote(store kv.Store) settings.Remote {
	if cfg.Settings.RemoteURL != "" {
		client, err := remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.Settings.RemoteURL,
			Token:   cfg.Settings.Token,
			Timeout: cfg.Settings.Timeout,
		})
		if err != nil {
			fatalf("%v", err)
		}
		return client
	}

	local, err := remote.NewStore(store, settings.Defaults())
	if err != nil {
		fatalf("%v", err)
	}
	return local
}

func cardService() *cards.DirService {
	if err := os.MkdirAll(cfg.Cards.Dir, 0o755); err != nil {
		fatalf("failed to create cards directory: %v", err)
	}
	svc, err := cards.NewDirService(cfg.Cards.Dir, logging.Component(logger, "cards"))
	if err != nil {
		fatalf("%v", err)
	}
	return svc
}

// terminalNotifier prints notifications for one-shot commands.
var terminalNotifier = notify.Func(func(n notify.Notification) {
	icon := ui.RenderAccent("•")
	switch n.Level {
	case notify.LevelSuccess:
		icon = ui.RenderPass("✓")
	case notify.LevelWarning:
		icon = ui.RenderWarn("⚠")
	case notify.LevelError:
		icon = ui.RenderFail("✗")
	}
	if n.Message != "" {
		fmt.Fprintf(os.Stderr, "%s %s: %s\n", icon, n.Title, n.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", icon, n.Title)
})

type sessionOptions struct {
	// serve keeps autosave and the card watcher running
	serve    bool
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

// board is an open session with the store and settings remote behind it.
type board struct {
	*session.Session
	store  kv.Store
	remote settings.Remote
}

// openBoard opens the configured board. Exits on failure.
func openBoard(ctx context.Context, opts sessionOptions) *board {
	store := openStore(ctx)
	svc := cardService()
	rem := settingsRemote(store)

	sc := &session.Config{
		Store:           store,
		Namespace:       cfg.Storage.Namespace,
		Cards:           svc,
		Remote:          rem,
		UserID:          cfg.Settings.UserID,
		Settings:        settings.Defaults(),
		SettingsTimeout: cfg.Settings.Timeout,
		Grid: layout.GridOptions{
			Columns:  cfg.Layout.Columns,
			SpacingX: cfg.Layout.SpacingX,
			SpacingY: cfg.Layout.SpacingY,
		},
		Directional: layout.DirectionalOptions{
			LayerSpacing: cfg.Layout.SpacingX,
			NodeSpacing:  cfg.Layout.SpacingY,
		},
		Logger:   logging.Component(logger, "session"),
		Notifier: opts.notifier,
		Metrics:  opts.metrics,
	}
	if sc.Notifier == nil {
		sc.Notifier = terminalNotifier
	}
	if opts.serve {
		sc.WatchDir = svc.Dir()
		sc.WatchDebounce = cfg.Cards.Debounce
		sc.AutosaveInterval = cfg.Autosave.Interval
		sc.AutosaveDebounce = cfg.Autosave.Debounce
	}

	sess, err := session.Open(ctx, sc)
	if err != nil {
		store.Close()
		fatalf("failed to open board: %v", err)
	}
	return &board{Session: sess, store: store, remote: rem}
}

// close flushes the board and releases the store. Exits on failure.
func (b *board) close() {
	if err := b.shutdown(); err != nil {
		fatalf("%v", err)
	}
}

// fatalf closes the board, then exits like the package-level fatalf.
func (b *board) fatalf(format string, args ...any) {
	if err := b.shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	fatalf(format, args...)
}

func (b *board) shutdown() error {
	err := b.Session.Close()
	if cerr := b.store.Close(); err == nil {
		err = cerr
	}
	return err
}
