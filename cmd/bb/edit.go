package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/interact"
	"github.com/mschirtzinger/beadboard/internal/board/layout"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var layoutCmd = &cobra.Command{
	Use:       "layout <grid|horizontal|vertical>",
	GroupID:   "board",
	Short:     "Rearrange every node on the board",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(layout.KindGrid), string(layout.KindHorizontal), string(layout.KindVertical)},
	Long: `Apply a layout to the whole board and save it.

  grid         pack cards row by row
  horizontal   layer cards left to right along their edges
  vertical     layer cards top to bottom along their edges`,
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		if err := b.Handlers.ApplyLayout(layout.Kind(args[0])); err != nil {
			b.fatalf("%v", err)
		}
		nodes, _ := b.Graph.Len()
		fmt.Printf("%s Applied %s layout to %d nodes\n", ui.RenderPass("✓"), args[0], nodes)
	},
}

var connectCmd = &cobra.Command{
	Use:     "connect <source> <target>",
	GroupID: "board",
	Short:   "Connect two cards with an edge",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		edge, err := b.Handlers.Connect(interact.ConnectIntent{Source: args[0], Target: args[1]})
		if err != nil {
			b.fatalf("%v", err)
		}
		fmt.Printf("%s Connected %s → %s (%s)\n", ui.RenderPass("✓"), edge.Source, edge.Target, edge.ID)
	},
}

var disconnectCmd = &cobra.Command{
	Use:     "disconnect <edge-id>...",
	GroupID: "board",
	Short:   "Remove edges from the board",
	Args:    cobra.MinimumNArgs(1),
	Long: `Remove edges by id. Use 'bb export' to list edge ids.

Example usage:
  bb disconnect card-1-card-2-1718000000000`,
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		res := b.Handlers.Delete(nil, args)
		fmt.Printf("%s Removed %d edges\n", ui.RenderPass("✓"), res.Applied)
		if res.Skipped > 0 {
			fmt.Printf("%s %d unknown edge ids skipped\n", ui.RenderWarn("⚠"), res.Skipped)
		}
	},
}

var saveCmd = &cobra.Command{
	Use:     "save",
	GroupID: "board",
	Short:   "Write the current layout and edges to the store",
	Long: `Load the board and write it back. Cards that had no saved position
get the grid position they were given on load.`,
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		if err := b.FetchError(); err != nil {
			b.fatalf("cards could not be loaded, not saving: %v", err)
		}
		if err := b.Autosave.Save(); err != nil {
			b.fatalf("%v", err)
		}
		nodes, edges := b.Graph.Len()
		fmt.Printf("%s Saved %d nodes and %d edges\n", ui.RenderPass("✓"), nodes, edges)
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}
