package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/gaze/pkg/browser"
	gmcp "github.com/ormasoftchile/gaze/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/gaze/pkg/report"
	"github.com/ormasoftchile/gaze/pkg/runtime"
	"github.com/ormasoftchile/gaze/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Remove surrounding quotes
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "gaze",
	Short: "Declarative browser scenario engine",
	Long:  "gaze — run declarative browser scenarios: navigate, interact, assert, and capture, from a single YAML document.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.yaml]",
	Short: "Validate a scenario YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	sc, errs := schema.ValidateFile(args[0])
	if sc != nil {
		errs = append(errs, schema.CheckVariableReferences(sc)...)
	}
	if len(errs) > 0 {
		var errors []*schema.ValidationError
		var warnings []*schema.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
			for i, e := range errors {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errors))
		}
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", sc.Name, len(sc.Steps))
	return nil
}

// --- run ---

var (
	runVars     []string
	runHeaded   bool
	runTraceDir string
	runNoTrace  bool
	runChrome   string
)

var runCmd = &cobra.Command{
	Use:   "run [scenario.yaml]",
	Short: "Execute a browser scenario",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
	// Exit code 1 covers both step failures and fatal errors; cobra's own
	// usage output is suppressed for run failures.
	SilenceUsage: true,
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	sc, errs := schema.ValidateFile(filePath)
	if hasValidationErrors(errs) {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n", countValidationErrors(errs))
		for _, e := range errs {
			if e.Severity != "warning" {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
			}
		}
		return fmt.Errorf("scenario validation failed")
	}
	printValidationWarnings(errs)

	overrides := make(map[string]string)
	for _, v := range runVars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		overrides[parts[0]] = parts[1]
	}

	ctx := context.Background()
	session, err := browser.NewSession(ctx, browser.Options{
		Headless: !runHeaded,
		ExecPath: runChrome,
	})
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer session.Close()

	eng, err := runtime.NewEngine(sc, session, runtime.Options{
		TraceDir:     runTraceDir,
		NoArtifacts:  runNoTrace,
		Overrides:    overrides,
		ScenarioPath: filePath,
	})
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Print(report.Render(result))

	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func hasValidationErrors(errs []*schema.ValidationError) bool {
	return countValidationErrors(errs) > 0
}

func countValidationErrors(errs []*schema.ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.Severity != "warning" {
			n++
		}
	}
	return n
}

func printValidationWarnings(errs []*schema.ValidationError) {
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
		}
	}
}

// --- schema export ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export JSON Schema to stdout",
	RunE:  runSchemaExport,
}

func runSchemaExport(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	// Pretty-print the JSON
	var out json.RawMessage = data
	formatted, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		// fallback to raw
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(string(formatted))
	return nil
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve gaze tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.ServeStdio(gmcp.NewServer(version))
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gaze %s (build: %s)\n", version, commit)
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a variable (key=value), repeatable")
	runCmd.Flags().BoolVar(&runHeaded, "headed", false, "Run with a visible browser window")
	runCmd.Flags().StringVar(&runTraceDir, "trace-dir", "", "Run artifact directory (default tmp/runs)")
	runCmd.Flags().BoolVar(&runNoTrace, "no-trace", false, "Skip trace.jsonl and run.yaml artifacts")
	runCmd.Flags().StringVar(&runChrome, "chrome", "", "Path to the Chrome binary (default: auto-detect)")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
