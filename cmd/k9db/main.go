// Package main is the k9db command: it opens a database from a k9db.toml
// connection file and executes a .sql script of semicolon-separated
// statements against it, non-interactively. The interactive SQL shell
// itself is out of scope.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"k9db/internal/config"
	"k9db/internal/connection"
	"k9db/internal/rewrite"
)

type execFlags struct {
	configFile string
	script     string
	quiet      bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "k9db",
		Short: "Execute a SQL script against a k9db database",
	}

	rootCmd.AddCommand(execCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func execCmd() *cobra.Command {
	flags := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec <script.sql>",
		Short: "Open a database and execute every statement in a .sql file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			flags.script = args[0]
			return runExec(flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "k9db.toml", "Path to the k9db.toml connection file")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress per-statement result output")

	return cmd
}

func runExec(flags *execFlags) error {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return fmt.Errorf("loading %s: %w", flags.configFile, err)
	}

	state, err := connection.OpenConfig(cfg)
	if err != nil {
		return fmt.Errorf("opening database %q: %w", cfg.DatabaseName, err)
	}
	defer func() {
		if err := state.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing database: %v\n", err)
		}
	}()

	content, err := os.ReadFile(flags.script)
	if err != nil {
		return fmt.Errorf("reading script %s: %w", flags.script, err)
	}

	statements := splitStatements(string(content))
	if len(statements) == 0 {
		fmt.Println("no statements found in script")
		return nil
	}

	conn := state.NewConnection()
	defer conn.Close()

	for i, stmt := range statements {
		res, err := conn.Execute(stmt)
		if err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
		if !flags.quiet {
			printResult(i+1, stmt, res)
		}
	}
	return nil
}

func printResult(n int, stmt string, res rewrite.Result) {
	label := strings.Fields(stmt)
	kind := ""
	if len(label) > 0 {
		kind = strings.ToUpper(label[0])
	}
	switch {
	case res.Plan != "":
		fmt.Printf("[%d] %s:\n%s\n", n, kind, res.Plan)
	case len(res.Rows) > 0:
		fmt.Printf("[%d] %s: %d row(s) returned\n", n, kind, len(res.Rows))
	default:
		fmt.Printf("[%d] %s: %d row(s) affected\n", n, kind, res.RowsAffected)
	}
}

func splitStatements(script string) []string {
	var out []string
	for _, raw := range strings.Split(script, ";") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
