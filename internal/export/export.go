package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

// Export format ids.
const (
	FormatCSV        = "csv"
	FormatJSON       = "json"
	FormatDraftKings = "draftkings"
)

// Format describes a supported export format.
type Format struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ContentType string   `json:"content_type"`
	Description string   `json:"description"`
	Headers     []string `json:"headers,omitempty"`
}

var csvHeaders = []string{
	"lineup_id", "CPT", "TOP", "JNG", "MID", "ADC", "SUP", "TEAM",
	"total_salary", "projected_points", "nexus_score", "formula", "stack_signature",
	"total_ownership", "roi", "algorithm", "label",
}

var draftKingsHeaders = []string{"CPT", "FLEX", "FLEX", "FLEX", "FLEX", "TEAM"}

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{
		{ID: FormatCSV, Name: "CSV", ContentType: "text/csv", Description: "One row per lineup with slots and metrics", Headers: csvHeaders},
		{ID: FormatJSON, Name: "JSON", ContentType: "application/json", Description: "Array of lineup objects"},
		{ID: FormatDraftKings, Name: "DraftKings Showdown", ContentType: "text/csv", Description: "DraftKings captain mode upload template", Headers: draftKingsHeaders},
	}
}

func lookup(format string) (Format, bool) {
	for _, f := range Formats() {
		if f.ID == format {
			return f, true
		}
	}
	return Format{}, false
}

// Result is an encoded export.
type Result struct {
	Data        []byte
	FileName    string
	ContentType string
}

// Exporter encodes lineups.
type Exporter struct {
	now func() time.Time
}

func NewExporter() *Exporter { return &Exporter{now: time.Now} }

// Export encodes lineups in format. Unknown formats and empty input are
// input errors.
func (e *Exporter) Export(format string, lineups []optimizer.LineupView) (*Result, error) {
	f, ok := lookup(strings.ToLower(strings.TrimSpace(format)))
	if !ok {
		return nil, optimizer.NewInputError("unsupported export format %q", format)
	}
	if len(lineups) == 0 {
		return nil, optimizer.NewInputError("no lineups to export")
	}

	var (
		data []byte
		err  error
		ext  = "csv"
	)
	switch f.ID {
	case FormatCSV:
		data, err = e.csv(lineups)
	case FormatDraftKings:
		data, err = e.draftKings(lineups)
	case FormatJSON:
		data, err = json.MarshalIndent(lineups, "", "  ")
		ext = "json"
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s export: %w", f.ID, err)
	}

	return &Result{
		Data:        data,
		FileName:    fmt.Sprintf("lineups_%s_%s.%s", f.ID, e.now().UTC().Format("20060102_150405"), ext),
		ContentType: f.ContentType,
	}, nil
}

func cell(p optimizer.LineupPlayer) string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

// slotted returns the captain and the players keyed by slot.
func slotted(l optimizer.LineupView) (captain optimizer.LineupPlayer, bySlot map[optimizer.Position]optimizer.LineupPlayer) {
	bySlot = make(map[optimizer.Position]optimizer.LineupPlayer, len(l.Players))
	for _, p := range l.Players {
		bySlot[p.Position] = p
		if p.Captain {
			captain = p
		}
	}
	if captain.ID == "" {
		captain = l.Captain
	}
	return captain, bySlot
}

func (e *Exporter) csv(lineups []optimizer.LineupView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, l := range lineups {
		captain, bySlot := slotted(l)
		row := []string{l.ID, cell(captain)}
		for _, pos := range optimizer.AllPositions {
			row = append(row, cell(bySlot[pos]))
		}
		row = append(row,
			strconv.Itoa(l.TotalSalary),
			strconv.FormatFloat(l.ProjectedPoints, 'f', 2, 64),
			strconv.FormatFloat(l.NexusScore, 'f', 1, 64),
			l.Formula,
			l.StackSignature,
			strconv.FormatFloat(l.TotalOwnership, 'f', 2, 64),
			strconv.FormatFloat(l.ROI, 'f', 2, 64),
			string(l.Algorithm),
			string(l.Label),
		)
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write lineup %s: %w", l.ID, err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func (e *Exporter) draftKings(lineups []optimizer.LineupView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(draftKingsHeaders); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, l := range lineups {
		captain, bySlot := slotted(l)
		if len(bySlot) != optimizer.NumSlots || captain.ID == "" {
			return nil, fmt.Errorf("lineup %s does not fill the template", l.ID)
		}
		row := []string{cell(captain)}
		for _, pos := range optimizer.RolePositions {
			if p := bySlot[pos]; p.ID != captain.ID {
				row = append(row, cell(p))
			}
		}
		row = append(row, cell(bySlot[optimizer.PositionTEAM]))
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write lineup %s: %w", l.ID, err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
