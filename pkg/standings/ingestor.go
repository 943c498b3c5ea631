package standings

import (
	"racestandings/pkg/laptime"
	"racestandings/pkg/model"
	"racestandings/pkg/parser"
)

type Outcome struct {
	Standing model.Standing
	// RaceCompleted is true only for the ingestion that completed the race.
	RaceCompleted bool
}

type Ingestor struct {
	store  *Store
	engine *Engine
}

func NewIngestor(store *Store, engine *Engine) *Ingestor {
	return &Ingestor{
		store:  store,
		engine: engine,
	}
}

// Ingest applies ev and re-ranks the whole store.
func (in *Ingestor) Ingest(ev model.TimingEvent) (Outcome, error) {
	if _, err := in.Apply(ev); err != nil {
		return Outcome{}, err
	}

	completed, err := in.engine.Recompute(in.store)
	if err != nil {
		return Outcome{}, err
	}

	st, _ := in.store.StandingFor(ev.Code)
	return Outcome{Standing: st, RaceCompleted: completed}, nil
}

// Apply records ev without ranking. Nothing is modified when ev is rejected.
func (in *Ingestor) Apply(ev model.TimingEvent) (model.Standing, error) {
	if ev.Code == "" || ev.LapNumber < 1 {
		return model.Standing{}, &parser.ParseError{Line: ev.Raw, Reason: "event needs a pilot code and a positive lap number"}
	}

	duration, err := laptime.ParseDuration(ev.LapTime)
	if err != nil {
		return model.Standing{}, err
	}

	in.store.pilot(ev.Code, ev.PilotName)
	st, err := in.store.standing(ev.Code)
	if err != nil {
		return model.Standing{}, err
	}

	// Running count as the timing log has always reported it: one more than
	// the highest lap on record before this event, so a repeated lap still
	// counts.
	previousHighest := in.store.maxLapNumber(st.ID)

	if _, err := in.store.upsertLap(st.ID, model.Lap{
		Number:       ev.LapNumber,
		TimeOfDay:    ev.TimeOfDay,
		Duration:     duration,
		AverageSpeed: ev.AverageSpeed,
	}); err != nil {
		return model.Standing{}, err
	}

	st.LastLapDuration = duration
	st.TotalTime = in.store.totalTime(st.ID)
	st.LapsCompleted = previousHighest + 1
	in.store.lastLapNumber = ev.LapNumber

	return *st, nil
}
