package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcourtman/pulse-fleet/internal/aggregate"
	"github.com/rcourtman/pulse-fleet/internal/config"
	"github.com/rcourtman/pulse-fleet/internal/refresh"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
	"github.com/rcourtman/pulse-fleet/internal/source"
)

var aggregateFull bool

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Fetch the sheets once and print the aggregates as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runAggregate(cmd.Context(), cfg, cmd.OutOrStdout(), aggregateFull)
	},
}

func init() {
	aggregateCmd.Flags().BoolVar(&aggregateFull, "full", false, "print the full snapshot instead of the summary")
}

// aggregateOutput is the default output of the aggregate command.
type aggregateOutput struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Rows        map[sheet.Kind]int `json:"rows"`
	aggregate.Summary
}

func runAggregate(ctx context.Context, cfg *config.Config, out io.Writer, full bool) error {
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	src, err := source.New(cfg)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	defer src.Close()

	r := refresh.New(refresh.Options{
		Fetcher:      src,
		Profile:      profile,
		FetchTimeout: cfg.FetchTimeout,
	})
	defer r.Close()

	snap, err := r.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if full {
		return enc.Encode(snap)
	}
	return enc.Encode(aggregateOutput{
		ID:          snap.ID,
		GeneratedAt: snap.GeneratedAt,
		Rows:        snap.Rows,
		Summary:     snap.Summary(),
	})
}
