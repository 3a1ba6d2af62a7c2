package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mdforge",
	Short: "Serve a markdown task workspace over stdio",
	Long:  `mdforge exposes a directory of markdown documents as a tool surface for coordinator and subagent workflows: browsing, editing, task tracking and search, all addressed by document path.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (ignored: serve always reads $XDG_CONFIG_HOME/mdforge/config.yaml or ~/.config/mdforge/config.yaml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "debug logging (accepted; has no effect)")
}
