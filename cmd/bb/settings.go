package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/settings"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "settings",
	Short:   "Show and change board settings",
	Long: `Show and change the board settings record: edge colors and width, end
marker, connection line kind, animation, snapping and background.

Changes go to the settings service when settings.remote_url is configured
and to the board's store otherwise.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current settings as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		b := openBoard(context.Background(), sessionOptions{})
		defer b.close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(b.Settings.Current()); err != nil {
			b.fatalf("%v", err)
		}
	},
}

var settingsPatchCmd = &cobra.Command{
	Use:   "patch <json>",
	Short: "Merge a partial JSON record into the settings",
	Args:  cobra.ExactArgs(1),
	Long: `Merge a partial settings record. Nested objects merge field by field.

Example usage:
  bb settings patch '{"strokeWidth": 3}'
  bb settings patch '{"background": {"variant": "lines"}}'`,
	Run: func(cmd *cobra.Command, args []string) {
		patch, err := settings.ParsePatch([]byte(args[0]))
		if err != nil {
			fatalf("%v", err)
		}
		applyPatch(patch)
	},
}

var settingsGridCmd = &cobra.Command{
	Use:   "grid <size>",
	Short: "Set the snap grid size (0 turns snapping off)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		size, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			fatalf("invalid grid size %q", args[0])
		}

		ctx := context.Background()
		b := openBoard(ctx, sessionOptions{})
		defer b.close()

		done, err := b.Settings.SetGridSize(ctx, size)
		if err != nil {
			b.fatalf("%v", err)
		}
		if err := <-done; err != nil {
			b.fatalf("%v", err)
		}
		if size == 0 {
			fmt.Printf("%s Snapping off\n", ui.RenderPass("✓"))
			return
		}
		fmt.Printf("%s Snap grid %gx%g\n", ui.RenderPass("✓"), size, size)
	},
}

var settingsEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the settings in an interactive form",
	Run: func(cmd *cobra.Command, args []string) {
		if !ui.IsTerminal(os.Stdin) {
			fatalf("settings edit needs a terminal; use 'bb settings patch'")
		}

		ctx := context.Background()
		b := openBoard(ctx, sessionOptions{})
		defer b.close()

		cur := b.Settings.Current()
		next, err := settingsForm(cur)
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Cancelled")
			return
		}
		if err != nil {
			b.fatalf("%v", err)
		}

		patch, err := settings.Diff(cur, next)
		if err != nil {
			b.fatalf("%v", err)
		}
		if len(patch) == 0 {
			fmt.Println("No changes")
			return
		}
		if err := b.Settings.PatchContext(ctx, patch); err != nil {
			b.fatalf("%v", err)
		}
		fmt.Printf("%s Updated %d settings\n", ui.RenderPass("✓"), len(patch))
	},
}

// applyPatch opens the board, applies patch and waits for the write.
func applyPatch(patch settings.Patch) {
	ctx := context.Background()
	b := openBoard(ctx, sessionOptions{})
	defer b.close()

	if err := b.Settings.PatchContext(ctx, patch); err != nil {
		b.fatalf("%v", err)
	}
	fmt.Printf("%s Settings updated\n", ui.RenderPass("✓"))
}

// settingsForm asks for the commonly edited fields, starting from cur.
func settingsForm(cur settings.BoardSettings) (settings.BoardSettings, error) {
	next := cur
	width := strconv.FormatFloat(cur.StrokeWidth, 'f', -1, 64)
	grid := strconv.FormatFloat(cur.SnapGrid[0], 'f', -1, 64)

	positive := func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return fmt.Errorf("enter a positive number")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Edge color").Value(&next.EdgeColor),
			huh.NewInput().Title("Selected edge color").Value(&next.SelectedEdgeColor),
			huh.NewInput().Title("Stroke width").Value(&width).Validate(positive),
			huh.NewSelect[string]().
				Title("End marker").
				Options(huh.NewOptions(settings.MarkerArrowClosed, settings.MarkerArrow, settings.MarkerNone)...).
				Value(&next.MarkerEnd),
			huh.NewSelect[string]().
				Title("Connection line").
				Options(huh.NewOptions("smoothstep", "step", "straight", "default", "simplebezier")...).
				Value(&next.ConnectionLineType),
			huh.NewConfirm().Title("Animate edges?").Value(&next.Animated),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Snap to grid?").Value(&next.SnapToGrid),
			huh.NewInput().Title("Grid size").Value(&grid).Validate(positive),
			huh.NewSelect[string]().
				Title("Background").
				Options(huh.NewOptions("dots", "lines", "cross")...).
				Value(&next.Background.Variant),
		),
	)
	if err := form.Run(); err != nil {
		return cur, err
	}

	next.StrokeWidth, _ = strconv.ParseFloat(width, 64)
	size, _ := strconv.ParseFloat(grid, 64)
	next.SnapGrid = [2]float64{size, size}
	return next, next.Validate()
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsPatchCmd)
	settingsCmd.AddCommand(settingsGridCmd)
	settingsCmd.AddCommand(settingsEditCmd)
	rootCmd.AddCommand(settingsCmd)
}
