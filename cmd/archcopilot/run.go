package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/archcopilot/internal/agent"
)

var (
	runFormat string
	runOut    string
)

var runCmd = &cobra.Command{
	Use:   "run <request.json>",
	Short: "Produce a design report for one request file",
	Long: `Run the full pipeline for a request read from a JSON file ("-" reads stdin)
and print the report as JSON or markdown.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "markdown", "output format: markdown or json")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the report to this file instead of stdout")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFormat != "markdown" && runFormat != "json" {
		return fmt.Errorf("unknown format %q", runFormat)
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analysis, err := a.copilot.Analyze(ctx, raw)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runOut != "" {
		f, err := os.Create(runOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	res := analysis.Result
	if res.Status != agent.RunSucceeded {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return fmt.Errorf("run %s finished with status %s", res.RunID, res.Status)
	}

	if runFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	}
	_, err = io.WriteString(out, res.Report.Markdown()+"\n")
	return err
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return data, nil
}
