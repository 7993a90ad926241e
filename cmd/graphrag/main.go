// Command graphrag is the CLI for the question-answering core: ask
// questions, run raw queries, ingest entities, and inspect the knowledge
// base.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"graphrag"
	"graphrag/internal/config"
	"graphrag/internal/entity"
	"graphrag/internal/generator"
	"graphrag/internal/logging"
	"graphrag/internal/pattern"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
	showCypher bool
	timeout    time.Duration

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "graphrag",
	Short: "Question answering over a graph store and a vector index",
	Long: `graphrag answers natural-language questions against a bi-modal
knowledge base: a labeled property graph plus a vector index.

The pipeline retrieves context (schema, similar questions, samples),
generates a read-only graph query, executes it under safety limits, and
narrates the results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Initialize(logging.Config{
			Level:      level,
			JSONFormat: cfg.Logging.Format == "json",
			FilePath:   cfg.Logging.File,
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a natural-language question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		engine, err := graphrag.Open(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := commandContext()
		defer cancel()

		answer, err := engine.Ask(ctx, question)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(answer)
		}
		fmt.Println(answer.Answer)
		if showCypher {
			fmt.Fprintf(os.Stderr, "\nquery: %s\nconfidence: %.2f\nrows: %d in %dms\n",
				answer.Cypher, answer.Confidence, answer.Stats.RowsReturned, answer.Stats.ExecutionTimeMs)
		}
		for _, w := range answer.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		for _, e := range answer.ContextErrors {
			fmt.Fprintf(os.Stderr, "context source %s failed: %s\n", e.Source, e.Message)
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [cypher]",
	Short: "Execute a query under the configured safety gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := graphrag.Open(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := commandContext()
		defer cancel()

		res, err := engine.Query(ctx, args[0], nil)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.json]",
	Short: "Ingest entity descriptors from a JSON file",
	Long: `Reads a JSON array of entity descriptors and writes each one to the
graph store and the vector store. Descriptors sharing a vector collection
are embedded in a single batch call.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var descs []*entity.Descriptor
		if err := json.Unmarshal(data, &descs); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		engine, err := graphrag.Open(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := commandContext()
		defer cancel()

		res, err := engine.IngestBatch(ctx, descs)
		if err != nil {
			return err
		}
		fmt.Printf("ingested %d entities: %d succeeded, %d partial, %d failed\n",
			res.Total, res.Succeeded, res.PartiallySucceeded, res.Failed)
		for id, msg := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", id, msg)
		}
		if res.Failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the graph schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := graphrag.Open(cfg)
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := commandContext()
		defer cancel()

		schema, err := engine.Schema(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(schema)
		}
		fmt.Printf("Labels:             %s\n", strings.Join(schema.Labels, ", "))
		fmt.Printf("Relationship types: %s\n", strings.Join(schema.RelationshipTypes, ", "))
		fmt.Printf("Property keys:      %s\n", strings.Join(schema.PropertyKeys, ", "))
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the query pattern library",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib := pattern.NewLibrary()
		if cfg.PatternsPath != "" {
			if _, err := lib.LoadFromYAML(cfg.PatternsPath); err != nil {
				return err
			}
		}
		for _, p := range lib.All() {
			fmt.Printf("%-40s %s\n", p.Name, p.Description)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [cypher]",
	Short: "Validate a query without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := generator.Validate(args[0], cfg.QueryGeneration.AllowWrite, cfg.QueryGeneration.MaxComplexity)
		if jsonOutput {
			return printJSON(v)
		}
		fmt.Printf("valid: %t  read-only: %t  complexity: %d\n", v.Valid, v.IsReadOnly, v.Complexity)
		for _, e := range v.Errors {
			fmt.Printf("error:   %s\n", e)
		}
		for _, w := range v.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		if !v.Valid {
			os.Exit(1)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout > 0 {
		ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
		return ctx, func() { timeoutCancel(); cancel() }
	}
	return ctx, cancel
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "graphrag.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "overall command timeout")
	askCmd.Flags().BoolVar(&showCypher, "show-cypher", false, "print the generated query and stats")

	rootCmd.AddCommand(askCmd, queryCmd, ingestCmd, schemaCmd, patternsCmd, validateCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
