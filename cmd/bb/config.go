package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/config"
	"github.com/mschirtzinger/beadboard/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Manage bb.toml",
	Long: `Settings are read from bb.toml (.beadboard/ or the user config directory),
then BB_* environment variables, then flags. For example BB_SERVER_PORT
overrides [server] port.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the defaults",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}

		if err := config.WriteFile(path, config.Default(), force); err != nil {
			fatalf("%v (use --force to replace it)", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if used := cfgLoader.FileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("# "+used))
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", ui.RenderMuted("# no config file; defaults"))
		}

		shown := *cfg
		if shown.Settings.Token != "" {
			shown.Settings.Token = "********"
		}
		if err := config.Encode(os.Stdout, &shown); err != nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Replace an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
