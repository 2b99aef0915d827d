package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
)

func sampleLineup() optimizer.LineupView {
	names := map[optimizer.Position]string{
		optimizer.PositionTOP:  "Zeus",
		optimizer.PositionJNG:  "Oner",
		optimizer.PositionMID:  "Faker",
		optimizer.PositionADC:  "Gumayusi",
		optimizer.PositionSUP:  "Keria",
		optimizer.PositionTEAM: "T1",
	}
	v := optimizer.LineupView{
		ID:              "lineup-1",
		TotalSalary:     49500,
		ProjectedPoints: 180.25,
		NexusScore:      41.3,
		Formula:         "canonical",
		StackSignature:  "5",
		Algorithm:       optimizer.AlgorithmGenetic,
		Label:           optimizer.LabelCeiling,
	}
	for _, pos := range optimizer.AllPositions {
		p := optimizer.LineupPlayer{ID: "id-" + pos.String(), Name: names[pos], Team: "T1", Position: pos, Captain: pos == optimizer.PositionMID}
		if p.Captain {
			v.Captain = p
		}
		v.Players = append(v.Players, p)
	}
	return v
}

func fixedExporter() *Exporter {
	return &Exporter{now: func() time.Time { return time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC) }}
}

func TestExport_DraftKings(t *testing.T) {
	res, err := fixedExporter().Export("draftkings", []optimizer.LineupView{sampleLineup()})
	require.NoError(t, err)
	assert.Equal(t, "lineups_draftkings_20260301_123000.csv", res.FileName)
	assert.Equal(t, "text/csv", res.ContentType)

	rows, err := csv.NewReader(strings.NewReader(string(res.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"CPT", "FLEX", "FLEX", "FLEX", "FLEX", "TEAM"}, rows[0])
	assert.Equal(t, []string{
		"Faker (id-MID)", "Zeus (id-TOP)", "Oner (id-JNG)", "Gumayusi (id-ADC)", "Keria (id-SUP)", "T1 (id-TEAM)",
	}, rows[1])
}

func TestExport_CSV(t *testing.T) {
	res, err := fixedExporter().Export("CSV", []optimizer.LineupView{sampleLineup(), sampleLineup()})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(res.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeaders, rows[0])
	row := rows[1]
	assert.Equal(t, "lineup-1", row[0])
	assert.Equal(t, "Faker (id-MID)", row[1])
	assert.Equal(t, "49500", row[8])
	assert.Equal(t, "41.3", row[10])
	assert.Equal(t, "genetic", row[15])
	assert.Equal(t, "ceiling", row[16])
}

func TestExport_JSON(t *testing.T) {
	res, err := fixedExporter().Export("json", []optimizer.LineupView{sampleLineup()})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.FileName, ".json"))

	var decoded []optimizer.LineupView
	require.NoError(t, json.Unmarshal(res.Data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Faker", decoded[0].Captain.Name)
	assert.Equal(t, optimizer.PositionMID, decoded[0].Captain.Position)
}

func TestExport_Rejects(t *testing.T) {
	e := NewExporter()
	_, err := e.Export("fanduel", []optimizer.LineupView{sampleLineup()})
	assert.True(t, errors.Is(err, optimizer.ErrInvalidInput))

	_, err = e.Export("csv", nil)
	assert.True(t, errors.Is(err, optimizer.ErrInvalidInput))

	broken := sampleLineup()
	broken.Players = broken.Players[:3]
	_, err = e.Export("draftkings", []optimizer.LineupView{broken})
	assert.Error(t, err)
}
