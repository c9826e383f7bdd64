package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "board",
	Short:   "Show board status",
	Long: `Display the current state of the board.

Shows:
  - Storage backend and namespace
  - Number of nodes and edges
  - Viewport and the main board settings
  - Card loading errors, if any`,
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		nodes, edges := b.Graph.Len()
		v := b.Handlers.Viewport()
		s := b.Settings.Current()

		snap := "off"
		if s.SnapToGrid {
			snap = fmt.Sprintf("%gx%g", s.SnapGrid[0], s.SnapGrid[1])
		}

		fmt.Printf("\n%s Board Status\n\n", ui.RenderAccent("📊"))
		fmt.Print(ui.KeyValues([][2]string{
			{"Storage", cfg.Storage.Driver + " " + ui.RenderMuted(cfg.StorageDSN())},
			{"Namespace", cfg.Storage.Namespace},
			{"Cards", cfg.Cards.Dir},
			{"Nodes", strconv.Itoa(nodes)},
			{"Edges", strconv.Itoa(edges)},
			{"Viewport", fmt.Sprintf("%g,%g @ %gx", v.X, v.Y, v.Zoom)},
			{"Edge style", fmt.Sprintf("%s %s, width %g, marker %s", s.ConnectionLineType, s.EdgeColor, s.StrokeWidth, s.MarkerEnd)},
			{"Snap grid", snap},
			{"Background", s.Background.Variant},
		}))
		if err := b.FetchError(); err != nil {
			fmt.Fprintf(os.Stderr, "\n%s %v\n", ui.RenderWarn("⚠"), err)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
