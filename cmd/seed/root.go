package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"energy-agent/internal/seed"
)

// writerFactory opens the document store for table.
type writerFactory func(ctx context.Context, table string) (seed.Writer, error)

func newRootCmd(defaultTable string, open writerFactory, logger *slog.Logger) *cobra.Command {
	var table string

	root := &cobra.Command{
		Use:          "seed",
		Short:        "Load reference data into the document table",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&table, "table", defaultTable, "document table name (default $DOCUMENT_TABLE)")

	run := func(cmd *cobra.Command, targets []seed.Target, file string) error {
		if strings.TrimSpace(table) == "" {
			return errors.New("no table: set DOCUMENT_TABLE or --table")
		}
		store, err := open(cmd.Context(), table)
		if err != nil {
			return err
		}
		s, err := seed.New(store, logger)
		if err != nil {
			return err
		}

		failed := 0
		for _, t := range targets {
			records, err := t.Load(file)
			if err != nil {
				return err
			}
			res := s.Seed(cmd.Context(), t.Collection, records)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d written, %d failed\n", res.Collection, res.Written, res.Failed)
			failed += res.Failed
		}
		if failed > 0 {
			return fmt.Errorf("%d records failed to seed", failed)
		}
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Seed every built-in catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, seed.Targets(), "")
		},
	})

	for _, t := range seed.Targets() {
		var file string
		sub := &cobra.Command{
			Use:   t.Name,
			Short: fmt.Sprintf("Seed the %s collection", t.Collection),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, []seed.Target{t}, file)
			},
		}
		sub.Flags().StringVar(&file, "file", "", "YAML catalog to load instead of the built-in one")
		root.AddCommand(sub)
	}

	return root
}
