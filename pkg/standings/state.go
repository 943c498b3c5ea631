package standings

import (
	"fmt"
	"racestandings/pkg/model"
	"sort"
)

// State is the flat, persistable form of a Store.
type State struct {
	Pilots        []model.Pilot    `json:"pilots"`
	Standings     []model.Standing `json:"standings"`
	Laps          []model.Lap      `json:"laps"`
	LastLapNumber int              `json:"lastLapNumber"`
	Completed     bool             `json:"completed"`
}

func (st State) Empty() bool {
	return len(st.Pilots) == 0 && len(st.Standings) == 0 && len(st.Laps) == 0
}

// State exports the store. Pilots come in registration order, standings by id
// and laps by standing then number.
func (s *Store) State() State {
	state := State{
		Pilots:        s.Pilots(),
		Standings:     make([]model.Standing, 0, len(s.standings)),
		Laps:          []model.Lap{},
		LastLapNumber: s.lastLapNumber,
		Completed:     s.completed,
	}
	for _, st := range s.standings {
		state.Standings = append(state.Standings, *st)
	}
	sort.Slice(state.Standings, func(i, j int) bool {
		return state.Standings[i].ID < state.Standings[j].ID
	})
	for _, st := range state.Standings {
		state.Laps = append(state.Laps, s.LapsForStanding(st.ID)...)
	}
	return state
}

// FromState rebuilds a Store, rejecting states that break the aggregate's
// identity rules.
func FromState(state State) (*Store, error) {
	s := NewStore()

	pilots := append([]model.Pilot(nil), state.Pilots...)
	sort.SliceStable(pilots, func(i, j int) bool {
		return pilots[i].Seq < pilots[j].Seq
	})
	for _, p := range pilots {
		if p.Code == "" {
			return nil, fmt.Errorf("%w: pilot without code", ErrInvalidState)
		}
		if _, dup := s.pilots[p.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate pilot %q", ErrInvalidState, p.Code)
		}
		p := p
		s.pilots[p.Code] = &p
		s.pilotOrder = append(s.pilotOrder, p.Code)
		if p.Seq > s.pilotSeq {
			s.pilotSeq = p.Seq
		}
	}

	for _, st := range state.Standings {
		if _, ok := s.pilots[st.PilotCode]; !ok {
			return nil, fmt.Errorf("%w: standing %d references unknown pilot %q", ErrInvalidState, st.ID, st.PilotCode)
		}
		if _, dup := s.byPilot[st.PilotCode]; dup {
			return nil, fmt.Errorf("%w: pilot %q has more than one standing", ErrInvalidState, st.PilotCode)
		}
		if _, dup := s.standings[st.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate standing id %d", ErrInvalidState, st.ID)
		}
		st := st
		s.standings[st.ID] = &st
		s.byPilot[st.PilotCode] = st.ID
		s.laps[st.ID] = make(map[int]*model.Lap)
		if st.ID > s.standingID {
			s.standingID = st.ID
		}
	}

	for _, l := range state.Laps {
		laps, ok := s.laps[l.StandingID]
		if !ok {
			return nil, fmt.Errorf("%w: lap %d references unknown standing %d", ErrInvalidState, l.Number, l.StandingID)
		}
		if l.Number < 1 {
			return nil, fmt.Errorf("%w: lap number %d", ErrInvalidState, l.Number)
		}
		if _, dup := laps[l.Number]; dup {
			return nil, fmt.Errorf("%w: duplicate lap %d for standing %d", ErrInvalidState, l.Number, l.StandingID)
		}
		l := l
		laps[l.Number] = &l
		if l.Seq > s.lapSeq {
			s.lapSeq = l.Seq
		}
	}

	s.lastLapNumber = state.LastLapNumber
	s.completed = state.Completed
	return s, nil
}
