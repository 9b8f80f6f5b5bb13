// Package source fetches the raw tracking tables. Every source returns the
// same shape: row 0 is the header, the rest are data rows.
package source

import (
	"context"
	"fmt"

	"github.com/rcourtman/pulse-fleet/internal/config"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

// Fetcher returns the raw table for one sheet.
type Fetcher interface {
	Fetch(ctx context.Context, ref sheet.Ref) (sheet.Table, error)
}

// Source is a Fetcher that holds resources until closed.
type Source interface {
	Fetcher
	Close() error
}

// New builds the source selected by cfg.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Source {
	case config.SourceSheets:
		return NewSheetsClient(SheetsOptions{
			BaseURL:    cfg.SheetsBaseURL,
			APIKey:     cfg.SheetsAPIKey,
			Token:      cfg.SheetsToken,
			Timeout:    cfg.FetchTimeout,
			DNSRefresh: cfg.DNSRefresh,
		}), nil
	case config.SourceWorkbook:
		return NewWorkbookSource(cfg.SourcePath), nil
	case config.SourceDump:
		return NewDumpSource(cfg.SourcePath), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func sheetLabel(ref sheet.Ref) string {
	if ref.Kind != "" {
		return string(ref.Kind)
	}
	return ref.Range
}
