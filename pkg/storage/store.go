// Package storage persists race standings in SQLite.
package storage

import (
	"database/sql"
	"racestandings/pkg/standings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const DefaultPath = "./racestandings.db"

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", path)
	}

	for _, stmt := range createTableStmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "initialising database")
		}
	}

	return &Store{
		db: db,
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}

// Save upserts the full state of a race in one transaction.
func (s *Store) Save(key string, state standings.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning save")
	}
	defer tx.Rollback()

	_, err = tx.Exec(upsertRaceStmt, key, state.LastLapNumber, boolToInt(state.Completed), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.Wrapf(err, "saving race %s", key)
	}
	for _, p := range state.Pilots {
		if _, err := tx.Exec(upsertPilotStmt, key, p.Code, p.Name, p.Seq); err != nil {
			return errors.Wrapf(err, "saving pilot %s", p.Code)
		}
	}
	for _, st := range state.Standings {
		_, err := tx.Exec(upsertStandingStmt, key, st.ID, st.PilotCode, st.LapsCompleted, st.TotalTime,
			st.LastLapDuration, st.FinishingPosition, st.GapToLeader)
		if err != nil {
			return errors.Wrapf(err, "saving standing %d", st.ID)
		}
	}
	for _, l := range state.Laps {
		_, err := tx.Exec(upsertLapStmt, key, l.StandingID, l.Number, l.TimeOfDay, l.Duration, l.AverageSpeed, l.Seq)
		if err != nil {
			return errors.Wrapf(err, "saving lap %d of standing %d", l.Number, l.StandingID)
		}
	}

	return errors.Wrap(tx.Commit(), "committing save")
}

// Load reads a race back. An unknown race yields an empty state.
func (s *Store) Load(key string) (standings.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state standings.State
	var completed int
	err := s.db.QueryRow(selectRaceStmt, key).Scan(&state.LastLapNumber, &completed)
	if err == sql.ErrNoRows {
		return standings.State{}, nil
	}
	if err != nil {
		return state, errors.Wrapf(err, "loading race %s", key)
	}
	state.Completed = completed == 1

	rows, err := s.db.Query(selectPilotsStmt, key)
	if err != nil {
		return state, errors.Wrap(err, "loading pilots")
	}
	if state.Pilots, err = processPilotRows(rows); err != nil {
		return state, errors.Wrap(err, "reading pilots")
	}

	rows, err = s.db.Query(selectStandingsStmt, key)
	if err != nil {
		return state, errors.Wrap(err, "loading standings")
	}
	if state.Standings, err = processStandingRows(rows); err != nil {
		return state, errors.Wrap(err, "reading standings")
	}

	rows, err = s.db.Query(selectLapsStmt, key)
	if err != nil {
		return state, errors.Wrap(err, "loading laps")
	}
	if state.Laps, err = processLapRows(rows); err != nil {
		return state, errors.Wrap(err, "reading laps")
	}

	return state, nil
}

// Reset deletes every row of a race.
func (s *Store) Reset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning reset")
	}
	defer tx.Rollback()

	for _, stmt := range deleteRaceStmts {
		if _, err := tx.Exec(stmt, key); err != nil {
			return errors.Wrapf(err, "resetting race %s", key)
		}
	}
	return errors.Wrap(tx.Commit(), "committing reset")
}

func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectKeysStmt)
	if err != nil {
		return nil, errors.Wrap(err, "listing races")
	}
	keys, err := processKeyRows(rows)
	return keys, errors.Wrap(err, "reading races")
}
