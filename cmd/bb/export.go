package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/export"
	"github.com/mschirtzinger/beadboard/internal/board/persist"
	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/board/settings"
	"github.com/mschirtzinger/beadboard/internal/logging"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "board",
	Short:   "Export the board as JSON, YAML or SVG",
	Long: `Write a snapshot of the board: nodes, edges, viewport and settings.

The format follows the file extension (.json, .yaml, .yml, .svg) unless
--format is given. Without a file the snapshot goes to stdout.

Example usage:
  bb export board.yaml
  bb export --format svg > board.svg`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		if format == "" {
			format = "json"
			if path != "" {
				format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			}
		}

		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		var out io.Writer = os.Stdout
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				b.fatalf("failed to create %s: %v", path, err)
			}
			defer f.Close()
			out = f
		}

		nodes, edges, _ := b.Graph.Snapshot()
		current := b.Settings.Current()

		if format == "svg" {
			if err := export.RenderSVG(out, nodes, edges, current, export.SVGOptions{Title: cfg.Storage.Namespace}); err != nil {
				b.fatalf("%v", err)
			}
		} else {
			f, err := export.ParseFormat(format)
			if err != nil {
				b.fatalf("%v", err)
			}
			snap := export.New(nodes, edges, b.Handlers.Viewport(), &current)
			snap.Namespace = cfg.Storage.Namespace
			if err := export.Encode(out, snap, f); err != nil {
				b.fatalf("%v", err)
			}
		}

		if path != "" {
			fmt.Fprintf(os.Stderr, "%s Exported %d nodes and %d edges to %s\n", ui.RenderPass("✓"), len(nodes), len(edges), path)
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "board",
	Short:   "Replace the board with a snapshot",
	Long: `Restore layout, edges and viewport from a JSON or YAML snapshot.

Cards named by the snapshot that are missing from the cards directory are
recreated from the node data. With --settings the snapshot's board
settings are applied as well.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withSettings, _ := cmd.Flags().GetBool("settings")
		format, _ := cmd.Flags().GetString("format")

		f := export.FormatForPath(args[0])
		if format != "" {
			var err error
			if f, err = export.ParseFormat(format); err != nil {
				fatalf("%v", err)
			}
		}

		in, err := os.Open(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		snap, err := export.Decode(in, f)
		in.Close()
		if err != nil {
			fatalf("%v", err)
		}

		ctx := context.Background()

		// Recreate missing cards first so the restored layout has nodes
		// to apply to.
		svc := cardService()
		existing, err := svc.FetchCards(ctx)
		if err != nil {
			fatalf("failed to read cards: %v", err)
		}
		have := make(map[string]bool, len(existing))
		for _, c := range existing {
			have[c.ID] = true
		}
		created := 0
		for _, n := range snap.Nodes {
			if have[n.ID] {
				continue
			}
			card := &schema.Card{ID: n.ID, Title: n.Data.Title, Content: n.Data.Content, Tags: n.Data.Tags}
			if card.Title == "" {
				card.Title = n.ID
			}
			if _, err := svc.CreateCard(ctx, card); err != nil {
				fatalf("failed to recreate card %s: %v", n.ID, err)
			}
			created++
		}

		store := openStore(ctx)
		p, err := persist.New(store, &persist.Config{
			Namespace: cfg.Storage.Namespace,
			Logger:    logging.Component(logger, "persist"),
		})
		if err != nil {
			store.Close()
			fatalf("%v", err)
		}
		if err := export.Restore(p, snap); err != nil {
			store.Close()
			fatalf("%v", err)
		}
		store.Close()

		fmt.Printf("%s Imported %d nodes and %d edges from %s\n", ui.RenderPass("✓"), len(snap.Nodes), len(snap.Edges), args[0])
		if created > 0 {
			fmt.Printf("   Recreated %d cards in %s\n", created, cfg.Cards.Dir)
		}

		if withSettings && snap.Settings != nil {
			b := openBoard(ctx, sessionOptions{})
			defer b.close()

			patch, err := settings.Diff(b.Settings.Current(), *snap.Settings)
			if err != nil {
				b.fatalf("%v", err)
			}
			if err := b.Settings.PatchContext(ctx, patch); err != nil {
				b.fatalf("%v", err)
			}
			fmt.Printf("   Applied %d settings\n", len(patch))
		}
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "Output format: json, yaml or svg")
	importCmd.Flags().StringP("format", "f", "", "Input format: json or yaml")
	importCmd.Flags().Bool("settings", false, "Also apply the snapshot's board settings")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
