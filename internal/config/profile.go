package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/rcourtman/pulse-fleet/internal/aggregate"
	"github.com/rcourtman/pulse-fleet/internal/sheet"
)

const (
	trackingSpreadsheet = "1GPDqOSURZNALalPzfHNbMft0HQ1c_fIkgfu_V3fSroY"
	issuesSpreadsheet   = "1oHapc5HADod_2zPi0l1r8Ef2PjQlb4pfe-p9cKZFB2I"
)

// SheetProfile locates one sheet and names the header substring of each role.
type SheetProfile struct {
	sheet.Ref `yaml:",inline"`
	Columns   sheet.Matchers `yaml:"columns,omitempty"`
}

// Profile describes the tracked sheets and the row filters.
//
//	sheets:
//	  alerts:
//	    spreadsheet_id: 1GPD...
//	    range: Alert_Tracking!A:Z
//	    columns:
//	      alert-type: "alert type"
//	filters:
//	  alert_sentinels: ["no l2 alerts found"]
type Profile struct {
	Sheets  map[sheet.Kind]SheetProfile `yaml:"sheets"`
	Filters aggregate.Filters           `yaml:"filters"`
}

// DefaultProfile returns the profile of the fleet tracking spreadsheets.
func DefaultProfile() Profile {
	refs := map[sheet.Kind]sheet.Ref{
		sheet.KindMisalignment: {SpreadsheetID: trackingSpreadsheet, Range: "Misalignment_Tracking!A:Z"},
		sheet.KindAlerts:       {SpreadsheetID: trackingSpreadsheet, Range: "Alert_Tracking!A:Z"},
		sheet.KindIssues:       {SpreadsheetID: issuesSpreadsheet, Range: "Issues- Realtime!A:Z"},
	}

	p := Profile{
		Sheets:  make(map[sheet.Kind]SheetProfile, len(refs)),
		Filters: aggregate.DefaultFilters(),
	}
	for kind, ref := range refs {
		ref.Kind = kind
		p.Sheets[kind] = SheetProfile{Ref: ref, Columns: sheet.DefaultMatchers(kind)}
	}
	return p
}

// LoadProfile reads a profile file. An empty path yields DefaultProfile.
// Anything the file leaves out falls back to the defaults.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates profile YAML.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	p.fillDefaults()
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p *Profile) fillDefaults() {
	def := DefaultProfile()
	if p.Sheets == nil {
		p.Sheets = make(map[sheet.Kind]SheetProfile)
	}

	for kind, d := range def.Sheets {
		sp, ok := p.Sheets[kind]
		if !ok {
			p.Sheets[kind] = d
			continue
		}
		if sp.SpreadsheetID == "" {
			sp.SpreadsheetID = d.SpreadsheetID
		}
		if sp.Range == "" {
			sp.Range = d.Range
		}
		if sp.Columns == nil {
			sp.Columns = make(sheet.Matchers)
		}
		for role, sub := range d.Columns {
			if _, set := sp.Columns[role]; !set {
				sp.Columns[role] = sub
			}
		}
		p.Sheets[kind] = sp
	}

	for kind, sp := range p.Sheets {
		sp.Kind = kind
		p.Sheets[kind] = sp
	}

	if len(p.Filters.AlertSentinels) == 0 {
		p.Filters.AlertSentinels = def.Filters.AlertSentinels
	}
	if len(p.Filters.HistoricalVideo) == 0 {
		p.Filters.HistoricalVideo = def.Filters.HistoricalVideo
	}
	p.Filters.AlertSentinels = lower(p.Filters.AlertSentinels)
	p.Filters.HistoricalVideo = lower(p.Filters.HistoricalVideo)
}

// Validate reports unknown sheets and empty ranges or column substrings.
func (p Profile) Validate() error {
	var problems []string
	for kind, sp := range p.Sheets {
		if !isKnownKind(kind) {
			problems = append(problems, fmt.Sprintf("unknown sheet %q", kind))
			continue
		}
		if strings.TrimSpace(sp.Range) == "" {
			problems = append(problems, fmt.Sprintf("sheet %s: range is required", kind))
		}
		for role, sub := range sp.Columns {
			if strings.TrimSpace(sub) == "" {
				problems = append(problems, fmt.Sprintf("sheet %s: column %s has an empty header substring", kind, role))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid profile: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Refs returns the sheet locations in sheet.Kinds order.
func (p Profile) Refs() []sheet.Ref {
	refs := make([]sheet.Ref, 0, len(sheet.Kinds))
	for _, kind := range sheet.Kinds {
		if sp, ok := p.Sheets[kind]; ok {
			refs = append(refs, sp.Ref)
		}
	}
	return refs
}

// Options converts the profile into aggregation options.
func (p Profile) Options() aggregate.Options {
	matchers := make(map[sheet.Kind]sheet.Matchers, len(p.Sheets))
	for kind, sp := range p.Sheets {
		m := make(sheet.Matchers, len(sp.Columns))
		for role, sub := range sp.Columns {
			m[role] = strings.ToLower(sub)
		}
		matchers[kind] = m
	}
	return aggregate.Options{Matchers: matchers, Filters: p.Filters}
}

func isKnownKind(kind sheet.Kind) bool {
	return lo.Contains(sheet.Kinds, kind)
}

func lower(in []string) []string {
	return lo.Map(in, func(s string, _ int) string { return strings.ToLower(s) })
}
