package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/app"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// 一个仅执行一次聚合查询的命令行入口：适合手动调试数据源
func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliFlags struct {
	limit   int
	sources string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	var (
		flags cliFlags
		a     *app.App
	)

	root := &cobra.Command{
		Use:          "collect",
		Short:        "Run one aggregation against the configured news sources",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if flags.sources != "" {
				cfg.SourcesFile = flags.sources
			}
			if flags.timeout > 0 {
				cfg.RequestDeadline = flags.timeout
			}
			var err error
			a, err = app.Build(cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.Close()
			}
		},
	}

	root.PersistentFlags().IntVar(&flags.limit, "limit", 0, "max articles to print (0 uses RESULT_LIMIT)")
	root.PersistentFlags().StringVar(&flags.sources, "sources", "", "path to a sources YAML file (overrides SOURCES_FILE)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "overall aggregation deadline (overrides REQUEST_DEADLINE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "headline <category>",
			Short: "Fetch headlines for a category",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.Engine.LookupCategory(args[0]); err != nil {
					return err
				}
				items, err := a.Engine.Headlines(cmd.Context(), args[0], flags.limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd, items)
			},
		},
		&cobra.Command{
			Use:   "ask <text...>",
			Short: "Search all sources for a keyword",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				text := strings.Join(args, " ")
				items, err := a.Engine.Ask(cmd.Context(), text, flags.limit)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{
					"query": text,
					"count": len(items),
					"news":  items,
				})
			},
		},
		&cobra.Command{
			Use:   "sources",
			Short: "List configured sources by category",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := make(map[string][]string)
				for _, category := range a.Engine.Categories() {
					names := []string{}
					for _, sp := range a.Catalog.ByCategory(category) {
						names = append(names, sp.Name)
					}
					out[category] = names
				}
				return writeJSON(cmd, out)
			},
		},
	)

	return root
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
