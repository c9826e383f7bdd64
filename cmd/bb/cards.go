package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/schema"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var cardsCmd = &cobra.Command{
	Use:     "cards",
	GroupID: "board",
	Short:   "Manage the cards shown on the board",
	Long: `Cards live as one JSON file per card in the cards directory
(default .beadboard/cards). Every card appears as a node on the board.`,
}

var cardsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a card",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		content, _ := cmd.Flags().GetString("content")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		card, err := cardService().CreateCard(context.Background(), &schema.Card{
			ID:      id,
			Title:   args[0],
			Content: content,
			Tags:    tags,
		})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Created card %s\n", ui.RenderPass("✓"), card.ID)
	},
}

var cardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cards",
	Run: func(cmd *cobra.Command, args []string) {
		list, err := cardService().FetchCards(context.Background())
		if err != nil {
			fatalf("%v", err)
		}
		if len(list) == 0 {
			fmt.Printf("No cards in %s\n", cfg.Cards.Dir)
			return
		}

		width := ui.Width(os.Stdout)
		for _, c := range list {
			line := fmt.Sprintf("%-36s  %s", c.ID, ui.Truncate(c.Title, max(width-38, 20)))
			if len(c.Tags) > 0 {
				line += "  " + ui.RenderMuted("#"+strings.Join(c.Tags, " #"))
			}
			fmt.Println(line)
		}
	},
}

var cardsRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Delete card files",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc := cardService()
		for _, id := range args {
			if err := svc.DeleteCard(context.Background(), id); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s Removed card %s\n", ui.RenderPass("✓"), id)
		}
	},
}

func init() {
	cardsAddCmd.Flags().String("id", "", "Card id (default: a new UUID)")
	cardsAddCmd.Flags().String("content", "", "Card body")
	cardsAddCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")

	cardsCmd.AddCommand(cardsAddCmd)
	cardsCmd.AddCommand(cardsListCmd)
	cardsCmd.AddCommand(cardsRemoveCmd)
	rootCmd.AddCommand(cardsCmd)
}
