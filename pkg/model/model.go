package model

import "fmt"

// TimingEvent is one lap crossing as read from the timing log.
type TimingEvent struct {
	TimeOfDay    string `json:"timeOfDay"`
	Code         string `json:"code"`
	PilotName    string `json:"pilotName"`
	LapNumber    int    `json:"lapNumber"`
	LapTime      string `json:"lapTime"`
	AverageSpeed string `json:"averageSpeed"`
	Raw          string `json:"-"`
}

func (ev TimingEvent) String() string {
	return fmt.Sprintf("%s %s %s lap %d in %s", ev.TimeOfDay, ev.Code, ev.PilotName, ev.LapNumber, ev.LapTime)
}

type Pilot struct {
	Code string `json:"code"`
	Name string `json:"name"`
	// Seq is the registration order, starting at 1.
	Seq int64 `json:"seq"`
}

type Lap struct {
	StandingID   int64  `json:"standingId"`
	Number       int    `json:"number"`
	TimeOfDay    string `json:"timeOfDay"`
	Duration     int64  `json:"duration"` // milliseconds
	AverageSpeed string `json:"averageSpeed"`
	// Seq is assigned when the lap is first recorded and kept on overwrite.
	Seq int64 `json:"seq"`
}

type Standing struct {
	ID                int64  `json:"id"`
	PilotCode         string `json:"pilotCode"`
	LapsCompleted     int    `json:"lapsCompleted"`
	TotalTime         int64  `json:"totalTime"`       // milliseconds
	LastLapDuration   int64  `json:"lastLapDuration"` // milliseconds
	FinishingPosition int    `json:"finishingPosition"`
	GapToLeader       string `json:"gapToLeader"`
}

func (s Standing) Ranked() bool {
	return s.FinishingPosition > 0
}

// StandingRow is a Standing joined with its pilot, ready for display.
type StandingRow struct {
	Position      int    `json:"position"`
	Code          string `json:"code"`
	PilotName     string `json:"pilotName"`
	LapsCompleted int    `json:"lapsCompleted"`
	TotalTime     string `json:"totalTime"`
	TotalTimeMs   int64  `json:"totalTimeMs"`
	LastLapTime   string `json:"lastLapTime"`
	LastLapTimeMs int64  `json:"lastLapTimeMs"`
	GapToLeader   string `json:"gapToLeader"`
	Finished      bool   `json:"finished"`
	RecordedLaps  int    `json:"recordedLaps"`
}

// Snapshot is the published view of one race.
type Snapshot struct {
	RaceKey   string        `json:"raceKey"`
	FinalLap  int           `json:"finalLap"`
	Completed bool          `json:"completed"`
	Standings []StandingRow `json:"standings"`
}

// Podium returns up to n leading rows.
func (s Snapshot) Podium(n int) []StandingRow {
	if n > len(s.Standings) {
		n = len(s.Standings)
	}
	return s.Standings[:n]
}

func (s Snapshot) String() string {
	return fmt.Sprintf("race %s: %d pilots, completed=%t", s.RaceKey, len(s.Standings), s.Completed)
}
