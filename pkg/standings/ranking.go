package standings

import (
	"fmt"
	"racestandings/pkg/laptime"
	"racestandings/pkg/model"
	"sort"
)

// DefaultFinalLap is the race distance used when none is configured.
const DefaultFinalLap = 4

type ProvisionalOrder string

const (
	// ProvisionalRegistration ranks unfinished pilots in the order they were
	// first seen.
	ProvisionalRegistration ProvisionalOrder = "registration"
	// ProvisionalProgress ranks unfinished pilots by recorded laps, then
	// total time.
	ProvisionalProgress ProvisionalOrder = "progress"
)

func (o ProvisionalOrder) Valid() bool {
	return o == ProvisionalRegistration || o == ProvisionalProgress
}

type Engine struct {
	FinalLap    int
	Provisional ProvisionalOrder
	GapPolicy   laptime.GapPolicy
}

func NewEngine(finalLap int, provisional ProvisionalOrder, gapPolicy laptime.GapPolicy) *Engine {
	if finalLap < 1 {
		finalLap = DefaultFinalLap
	}
	if !provisional.Valid() {
		provisional = ProvisionalRegistration
	}
	if !gapPolicy.Valid() {
		gapPolicy = laptime.GapSigned
	}
	return &Engine{
		FinalLap:    finalLap,
		Provisional: provisional,
		GapPolicy:   gapPolicy,
	}
}

// Recompute assigns positions and gaps. It reports true when this pass
// completed the race.
func (e *Engine) Recompute(s *Store) (bool, error) {
	completed := e.AssignPositions(s)
	if err := e.ComputeGaps(s); err != nil {
		return completed, err
	}
	return completed, nil
}

// AssignPositions ranks pilots who reached the final lap in the order their
// final lap arrived, followed by everyone else. It returns true the one time
// the race becomes complete.
func (e *Engine) AssignPositions(s *Store) bool {
	var finished, rest []*model.Standing
	finalSeq := make(map[int64]int64)
	for _, st := range s.orderedStandings() {
		if lap, ok := s.laps[st.ID][e.FinalLap]; ok {
			finished = append(finished, st)
			finalSeq[st.ID] = lap.Seq
			continue
		}
		rest = append(rest, st)
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finalSeq[finished[i].ID] < finalSeq[finished[j].ID]
	})

	if e.Provisional == ProvisionalProgress {
		sort.SliceStable(rest, func(i, j int) bool {
			li, lj := len(s.laps[rest[i].ID]), len(s.laps[rest[j].ID])
			if li != lj {
				return li > lj
			}
			return rest[i].TotalTime < rest[j].TotalTime
		})
	}

	position := 1
	for _, st := range finished {
		st.FinishingPosition = position
		position++
	}
	for _, st := range rest {
		st.FinishingPosition = position
		position++
	}

	return e.CheckCompletion(s)
}

// CheckCompletion latches the race as complete once every pilot holds the
// final lap and the latest lap reached it. It does not rank, so it can run
// after every event while ranking is deferred. It returns true the one time
// the race becomes complete.
func (e *Engine) CheckCompletion(s *Store) bool {
	if s.completed || len(s.standings) == 0 || s.lastLapNumber < e.FinalLap {
		return false
	}
	for id := range s.standings {
		if _, ok := s.laps[id][e.FinalLap]; !ok {
			return false
		}
	}
	s.completed = true
	return true
}

// ComputeGaps sets every standing's gap to the leader. It is a no-op on an
// empty store.
func (e *Engine) ComputeGaps(s *Store) error {
	if s.Len() == 0 {
		return nil
	}

	leader, err := e.leader(s)
	if err != nil {
		return err
	}

	for _, st := range s.standings {
		st.GapToLeader = laptime.FormatSignedGap(st.TotalTime-leader.TotalTime, e.GapPolicy)
	}
	return nil
}

// Leader returns the standing in position 1.
func (e *Engine) Leader(s *Store) (model.Standing, error) {
	st, err := e.leader(s)
	if err != nil {
		return model.Standing{}, err
	}
	return *st, nil
}

func (e *Engine) leader(s *Store) (*model.Standing, error) {
	for _, st := range s.standings {
		if st.FinishingPosition == 1 {
			return st, nil
		}
	}
	return nil, &LookupError{Standings: s.Len()}
}

// Rows returns the standings joined with their pilots, ordered by position.
// Unranked standings come last in registration order.
func (e *Engine) Rows(s *Store) []model.StandingRow {
	ordered := s.orderedStandings()
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].FinishingPosition, ordered[j].FinishingPosition
		if pi == 0 || pj == 0 {
			return pj == 0 && pi != 0
		}
		return pi < pj
	})

	rows := make([]model.StandingRow, 0, len(ordered))
	for _, st := range ordered {
		_, finished := s.laps[st.ID][e.FinalLap]
		rows = append(rows, model.StandingRow{
			Position:      st.FinishingPosition,
			Code:          st.PilotCode,
			PilotName:     s.pilots[st.PilotCode].Name,
			LapsCompleted: st.LapsCompleted,
			TotalTime:     laptime.FormatGap(st.TotalTime),
			TotalTimeMs:   st.TotalTime,
			LastLapTime:   laptime.FormatLapTime(st.LastLapDuration),
			LastLapTimeMs: st.LastLapDuration,
			GapToLeader:   st.GapToLeader,
			Finished:      finished,
			RecordedLaps:  len(s.laps[st.ID]),
		})
	}
	return rows
}

func (e *Engine) String() string {
	return fmt.Sprintf("final lap %d, %s provisional order, %s gaps", e.FinalLap, e.Provisional, e.GapPolicy)
}
