// Package render prints race standings as text tables.
package render

import (
	"bytes"
	"fmt"
	"io"
	"racestandings/pkg/model"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	colPosition = "POS"
	colCode     = "CODE"
	colPilot    = "PILOT"
	colLaps     = "LAPS"
	colTotal    = "TOTAL"
	colLastLap  = "LAST LAP"
	colGap      = "GAP"
)

// Standings writes the snapshot as a table, leader first.
func Standings(w io.Writer, s model.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title(s))

	t.AppendHeader(table.Row{colPosition, colCode, colPilot, colLaps, colTotal, colLastLap, colGap})
	for _, row := range s.Standings {
		t.AppendRow(table.Row{
			position(row),
			row.Code,
			row.PilotName,
			row.LapsCompleted,
			row.TotalTime,
			row.LastLapTime,
			row.GapToLeader,
		})
	}
	t.Render()
}

// StandingsString is Standings into a string.
func StandingsString(s model.Snapshot) string {
	var b bytes.Buffer
	Standings(&b, s)
	return b.String()
}

// Podium renders the first n rows with position, pilot and gap only.
func Podium(s model.Snapshot, n int) string {
	var b bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&b)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{colPosition, colPilot, colGap})
	for _, row := range s.Podium(n) {
		t.AppendRow(table.Row{position(row), row.PilotName, row.GapToLeader})
	}
	t.Render()
	return b.String()
}

func title(s model.Snapshot) string {
	status := "running"
	if s.Completed {
		status = "complete"
	}
	return fmt.Sprintf("Race %s, %d laps, %s", s.RaceKey, s.FinalLap, status)
}

func position(row model.StandingRow) string {
	if row.Position == 0 {
		return "-"
	}
	p := strconv.Itoa(row.Position)
	if row.Finished {
		p += " F"
	}
	return p
}

// Summary counts the outcome of reading a timing log.
type Summary struct {
	RaceKey  string
	Lines    int
	Ingested int
	Skipped  int
	Rejected int
	Elapsed  time.Duration
}

func WriteSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "race %s: %s lines read, %s ingested, %s skipped, %s rejected in %s\n",
		s.RaceKey,
		humanize.Comma(int64(s.Lines)),
		humanize.Comma(int64(s.Ingested)),
		humanize.Comma(int64(s.Skipped)),
		humanize.Comma(int64(s.Rejected)),
		s.Elapsed.Round(time.Millisecond))
}
