package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "archcopilot",
	Short: "ArchCopilot - system design reports from product requirements",
	Long: `ArchCopilot turns a product requirements document into a system design
report: architecture options, sizing, tech stack, API sketch, performance,
reliability and security plans, risks and a phased rollout.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
}

func Execute() error {
	return rootCmd.Execute()
}
