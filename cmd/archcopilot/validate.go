package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <request.json>",
	Short: "Check a request file without calling a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		c, err := newValidatorOnly(cfg)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		req, err := c.Validate(cmd.Context(), raw)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"valid": true, "request": req})
	},
}

var estimateCmd = &cobra.Command{
	Use:   "estimate <request.json>",
	Short: "Print the deterministic sizing baseline for a request file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		c, err := newValidatorOnly(cfg)
		if err != nil {
			return err
		}
		raw, err := readInput(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		baseline, err := c.Estimate(cmd.Context(), raw)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"baseline": baseline})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, estimateCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
