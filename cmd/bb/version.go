package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/beadboard/internal/board/export"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:     "version",
	GroupID: "advanced",
	Short:   "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v := Version
		if v == "dev" {
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
				v = info.Main.Version
			}
		}
		fmt.Printf("bb %s (snapshot format %s)\n", v, export.FormatVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
