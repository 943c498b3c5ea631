package storage

import (
	"database/sql"
	"racestandings/pkg/model"
)

var createTableStmts = []string{
	`CREATE TABLE IF NOT EXISTS races (
		race_key TEXT PRIMARY KEY,
		last_lap_number INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		updated_at TEXT NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS pilots (
		race TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (race, code));`,
	`CREATE TABLE IF NOT EXISTS standings (
		race TEXT NOT NULL,
		id INTEGER NOT NULL,
		pilot_code TEXT NOT NULL,
		laps_completed INTEGER NOT NULL,
		total_time INTEGER NOT NULL,
		last_lap_duration INTEGER NOT NULL,
		finishing_position INTEGER NOT NULL,
		gap_to_leader TEXT NOT NULL,
		PRIMARY KEY (race, id),
		UNIQUE (race, pilot_code));`,
	`CREATE TABLE IF NOT EXISTS laps (
		race TEXT NOT NULL,
		standing_id INTEGER NOT NULL,
		number INTEGER NOT NULL,
		time_of_day TEXT NOT NULL,
		duration INTEGER NOT NULL,
		average_speed TEXT NOT NULL,
		seq INTEGER NOT NULL,
		PRIMARY KEY (race, standing_id, number));`,
}

const (
	upsertRaceStmt = `INSERT OR REPLACE INTO races (race_key, last_lap_number, completed, updated_at)
		VALUES (?, ?, ?, ?)`
	upsertPilotStmt = `INSERT OR REPLACE INTO pilots (race, code, name, seq)
		VALUES (?, ?, ?, ?)`
	upsertStandingStmt = `INSERT OR REPLACE INTO standings (race, id, pilot_code, laps_completed, total_time, last_lap_duration, finishing_position, gap_to_leader)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	upsertLapStmt = `INSERT OR REPLACE INTO laps (race, standing_id, number, time_of_day, duration, average_speed, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectRaceStmt      = `SELECT last_lap_number, completed FROM races WHERE race_key = ?`
	selectPilotsStmt    = `SELECT code, name, seq FROM pilots WHERE race = ? ORDER BY seq`
	selectStandingsStmt = `SELECT id, pilot_code, laps_completed, total_time, last_lap_duration, finishing_position, gap_to_leader
		FROM standings WHERE race = ? ORDER BY id`
	selectLapsStmt = `SELECT standing_id, number, time_of_day, duration, average_speed, seq
		FROM laps WHERE race = ? ORDER BY standing_id, number`
	selectKeysStmt = `SELECT race_key FROM races ORDER BY race_key`
)

var deleteRaceStmts = []string{
	`DELETE FROM laps WHERE race = ?`,
	`DELETE FROM standings WHERE race = ?`,
	`DELETE FROM pilots WHERE race = ?`,
	`DELETE FROM races WHERE race_key = ?`,
}

func processPilotRows(rows *sql.Rows) ([]model.Pilot, error) {
	defer rows.Close()

	pilots := make([]model.Pilot, 0)
	for rows.Next() {
		var p model.Pilot
		if err := rows.Scan(&p.Code, &p.Name, &p.Seq); err != nil {
			return pilots, err
		}
		pilots = append(pilots, p)
	}
	return pilots, rows.Err()
}

func processStandingRows(rows *sql.Rows) ([]model.Standing, error) {
	defer rows.Close()

	standings := make([]model.Standing, 0)
	for rows.Next() {
		var st model.Standing
		err := rows.Scan(&st.ID, &st.PilotCode, &st.LapsCompleted, &st.TotalTime,
			&st.LastLapDuration, &st.FinishingPosition, &st.GapToLeader)
		if err != nil {
			return standings, err
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}

func processLapRows(rows *sql.Rows) ([]model.Lap, error) {
	defer rows.Close()

	laps := make([]model.Lap, 0)
	for rows.Next() {
		var l model.Lap
		err := rows.Scan(&l.StandingID, &l.Number, &l.TimeOfDay, &l.Duration, &l.AverageSpeed, &l.Seq)
		if err != nil {
			return laps, err
		}
		laps = append(laps, l)
	}
	return laps, rows.Err()
}

func processKeyRows(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
