// Package standings holds the in-memory race aggregate (pilots, standings
// and laps) together with the ingestor that feeds it and the engine that
// ranks it.
package standings

import (
	"errors"
	"fmt"
	"racestandings/pkg/model"
	"sort"
)

var (
	ErrUnknownPilot    = errors.New("standings: unknown pilot")
	ErrUnknownStanding = errors.New("standings: unknown standing")
	ErrInvalidState    = errors.New("standings: invalid state")
)

// Store is the aggregate for one race. It is not safe for concurrent use;
// callers serialise access (see race.Race).
type Store struct {
	pilots     map[string]*model.Pilot
	pilotOrder []string

	standings map[int64]*model.Standing
	byPilot   map[string]int64

	laps map[int64]map[int]*model.Lap

	pilotSeq   int64
	standingID int64
	lapSeq     int64

	lastLapNumber int
	completed     bool
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops every record so the store can hold a new race.
func (s *Store) Reset() {
	s.pilots = make(map[string]*model.Pilot)
	s.pilotOrder = nil
	s.standings = make(map[int64]*model.Standing)
	s.byPilot = make(map[string]int64)
	s.laps = make(map[int64]map[int]*model.Lap)
	s.pilotSeq = 0
	s.standingID = 0
	s.lapSeq = 0
	s.lastLapNumber = 0
	s.completed = false
}

// GetOrCreatePilot returns the pilot for code, creating it on first sight.
// An existing pilot only gets its name filled in if it was blank.
func (s *Store) GetOrCreatePilot(code, name string) (model.Pilot, bool) {
	p, created := s.pilot(code, name)
	return *p, created
}

func (s *Store) pilot(code, name string) (*model.Pilot, bool) {
	if p, ok := s.pilots[code]; ok {
		if p.Name == "" {
			p.Name = name
		}
		return p, false
	}
	s.pilotSeq++
	p := &model.Pilot{Code: code, Name: name, Seq: s.pilotSeq}
	s.pilots[code] = p
	s.pilotOrder = append(s.pilotOrder, code)
	return p, true
}

func (s *Store) Pilot(code string) (model.Pilot, bool) {
	p, ok := s.pilots[code]
	if !ok {
		return model.Pilot{}, false
	}
	return *p, true
}

// Pilots returns every pilot in registration order.
func (s *Store) Pilots() []model.Pilot {
	pilots := make([]model.Pilot, 0, len(s.pilotOrder))
	for _, code := range s.pilotOrder {
		pilots = append(pilots, *s.pilots[code])
	}
	return pilots
}

// GetOrCreateStanding returns the standing of an existing pilot, creating a
// zeroed one on first use.
func (s *Store) GetOrCreateStanding(pilotCode string) (model.Standing, error) {
	st, err := s.standing(pilotCode)
	if err != nil {
		return model.Standing{}, err
	}
	return *st, nil
}

func (s *Store) standing(pilotCode string) (*model.Standing, error) {
	if _, ok := s.pilots[pilotCode]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPilot, pilotCode)
	}
	if id, ok := s.byPilot[pilotCode]; ok {
		return s.standings[id], nil
	}
	s.standingID++
	st := &model.Standing{ID: s.standingID, PilotCode: pilotCode}
	s.standings[st.ID] = st
	s.byPilot[pilotCode] = st.ID
	s.laps[st.ID] = make(map[int]*model.Lap)
	return st, nil
}

func (s *Store) StandingFor(pilotCode string) (model.Standing, bool) {
	id, ok := s.byPilot[pilotCode]
	if !ok {
		return model.Standing{}, false
	}
	return *s.standings[id], true
}

// UpsertLap records lap under standingID, replacing any lap with the same
// number. A replaced lap keeps its original arrival sequence.
func (s *Store) UpsertLap(standingID int64, lap model.Lap) (model.Lap, error) {
	l, err := s.upsertLap(standingID, lap)
	if err != nil {
		return model.Lap{}, err
	}
	return *l, nil
}

func (s *Store) upsertLap(standingID int64, lap model.Lap) (*model.Lap, error) {
	laps, ok := s.laps[standingID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStanding, standingID)
	}
	lap.StandingID = standingID
	if prev, ok := laps[lap.Number]; ok {
		lap.Seq = prev.Seq
		*prev = lap
		return prev, nil
	}
	s.lapSeq++
	lap.Seq = s.lapSeq
	l := &lap
	laps[lap.Number] = l
	return l, nil
}

// LapCount reports how many laps numbered number exist for the standing;
// by construction it is 0 or 1.
func (s *Store) LapCount(standingID int64, number int) int {
	if _, ok := s.laps[standingID][number]; ok {
		return 1
	}
	return 0
}

// LapsForStanding returns the standing's laps ordered by lap number.
func (s *Store) LapsForStanding(standingID int64) []model.Lap {
	laps := make([]model.Lap, 0, len(s.laps[standingID]))
	for _, l := range s.laps[standingID] {
		laps = append(laps, *l)
	}
	sort.Slice(laps, func(i, j int) bool {
		return laps[i].Number < laps[j].Number
	})
	return laps
}

// AllStandings returns every standing in pilot registration order.
func (s *Store) AllStandings() []model.Standing {
	ordered := s.orderedStandings()
	out := make([]model.Standing, 0, len(ordered))
	for _, st := range ordered {
		out = append(out, *st)
	}
	return out
}

func (s *Store) orderedStandings() []*model.Standing {
	out := make([]*model.Standing, 0, len(s.standings))
	for _, code := range s.pilotOrder {
		if id, ok := s.byPilot[code]; ok {
			out = append(out, s.standings[id])
		}
	}
	return out
}

func (s *Store) maxLapNumber(standingID int64) int {
	highest := 0
	for n := range s.laps[standingID] {
		if n > highest {
			highest = n
		}
	}
	return highest
}

func (s *Store) totalTime(standingID int64) int64 {
	var total int64
	for _, l := range s.laps[standingID] {
		total += l.Duration
	}
	return total
}

// Len is the number of standings.
func (s *Store) Len() int {
	return len(s.standings)
}

// LastLapNumber is the lap number of the most recently ingested event.
func (s *Store) LastLapNumber() int {
	return s.lastLapNumber
}

// RaceComplete reports whether the completion signal has fired for this race.
func (s *Store) RaceComplete() bool {
	return s.completed
}
