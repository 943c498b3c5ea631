// Package race runs independent races, each with its own standings store,
// and connects them to persistence, pub/sub and metrics.
package race

import (
	"fmt"
	"racestandings/pkg/laptime"
	"racestandings/pkg/model"
	"racestandings/pkg/parser"
	"racestandings/pkg/pubsub"
	"racestandings/pkg/queues"
	"racestandings/pkg/standings"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// TopicComplete receives one snapshot per race, when it completes.
	TopicComplete = "race.complete"

	topicStandingsPrefix = "race.standings."
)

var ErrPersist = errors.New("race: persist failed")

// TopicStandings is the topic carrying every standings update of a race.
func TopicStandings(key string) string {
	return topicStandingsPrefix + key
}

type Config struct {
	FinalLap    int
	Provisional standings.ProvisionalOrder
	GapPolicy   laptime.GapPolicy
	// BatchSize is how many lines IngestBatch applies between ranking passes.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		FinalLap:    standings.DefaultFinalLap,
		Provisional: standings.ProvisionalRegistration,
		GapPolicy:   laptime.GapSigned,
		BatchSize:   256,
	}
}

// LineError reports a rejected line of a batch.
type LineError struct {
	Number int
	Line   string
	Err    error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Number, e.Err)
}

func (e LineError) Unwrap() error {
	return e.Err
}

type BatchResult struct {
	Ingested  int
	Skipped   int
	Rejected  []LineError
	Completed bool
}

type Race struct {
	mu        sync.Mutex
	key       string
	cfg       Config
	store     *standings.Store
	engine    *standings.Engine
	ingestor  *standings.Ingestor
	persister Persister
	ps        *pubsub.PubSub[model.Snapshot]
	log       logrus.FieldLogger
	metrics   *Metrics
}

func newRace(key string, cfg Config, store *standings.Store, persister Persister, ps *pubsub.PubSub[model.Snapshot], log logrus.FieldLogger, metrics *Metrics) *Race {
	engine := standings.NewEngine(cfg.FinalLap, cfg.Provisional, cfg.GapPolicy)
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Race{
		key:       key,
		cfg:       cfg,
		store:     store,
		engine:    engine,
		ingestor:  standings.NewIngestor(store, engine),
		persister: persister,
		ps:        ps,
		log:       log.WithField("race", key),
		metrics:   metrics,
	}
}

func (r *Race) Key() string {
	return r.key
}

// IngestLine parses and ingests one raw log line. Blank and comment lines
// return parser.ErrBlankLine.
func (r *Race) IngestLine(line string) (standings.Outcome, error) {
	ev, err := parser.ParseLine(line)
	if err != nil {
		if err != parser.ErrBlankLine {
			r.reject(err)
		}
		return standings.Outcome{}, err
	}
	return r.Ingest(ev)
}

// Ingest applies ev, re-ranks the race, then persists and publishes the new
// standings. A persistence failure is returned wrapping ErrPersist; the
// in-memory standings are kept.
func (r *Race) Ingest(ev model.TimingEvent) (standings.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := prometheus.NewTimer(r.metrics.rankingDuration)
	out, err := r.ingestor.Ingest(ev)
	timer.ObserveDuration()
	if err != nil {
		if !errors.Is(err, standings.ErrNoLeader) {
			r.reject(err)
		}
		return out, err
	}
	r.metrics.linesIngested.WithLabelValues(r.key).Inc()

	return out, r.flush(out.RaceCompleted)
}

// IngestBatch ingests lines in order, ranking every BatchSize applied lines
// and once at the end, then persists and publishes once. Completion is
// checked after every line. A leading header line is skipped. The error is only set when persisting fails.
func (r *Race) IngestBatch(lines []string) (BatchResult, error) {
	type numbered struct {
		number int
		text   string
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	q := queues.NewQueue[numbered]()
	for i, line := range lines {
		q.Push(numbered{number: i + 1, text: line})
	}

	var res BatchResult
	seenContent := false
	pending := 0
	for !q.IsEmpty() {
		line, _ := q.Pop()

		if !seenContent && strings.TrimSpace(line.text) != "" {
			seenContent = true
			if parser.IsHeader(line.text) {
				res.Skipped++
				continue
			}
		}

		ev, err := parser.ParseLine(line.text)
		if err == parser.ErrBlankLine {
			res.Skipped++
			continue
		}
		if err == nil {
			_, err = r.ingestor.Apply(ev)
		}
		if err != nil {
			r.reject(err)
			r.log.WithError(err).WithField("line", line.number).Warn("rejected timing line")
			res.Rejected = append(res.Rejected, LineError{Number: line.number, Line: line.text, Err: err})
			continue
		}

		r.metrics.linesIngested.WithLabelValues(r.key).Inc()
		res.Ingested++
		if r.engine.CheckCompletion(r.store) {
			res.Completed = true
		}
		pending++
		if pending == r.cfg.BatchSize {
			if err := r.recomputeInto(&res); err != nil {
				return res, err
			}
			pending = 0
		}
	}

	if res.Ingested == 0 {
		return res, nil
	}
	if pending > 0 {
		if err := r.recomputeInto(&res); err != nil {
			return res, err
		}
	}
	return res, r.flush(res.Completed)
}

func (r *Race) recomputeInto(res *BatchResult) error {
	completed, err := r.recompute()
	if err != nil {
		return err
	}
	res.Completed = res.Completed || completed
	return nil
}

func (r *Race) recompute() (bool, error) {
	timer := prometheus.NewTimer(r.metrics.rankingDuration)
	defer timer.ObserveDuration()
	return r.engine.Recompute(r.store)
}

func (r *Race) flush(completed bool) error {
	var err error
	if saveErr := r.persister.Save(r.key, r.store.State()); saveErr != nil {
		err = errors.Wrapf(ErrPersist, "race %s: %v", r.key, saveErr)
		r.log.WithError(saveErr).Error("saving standings")
	}

	snapshot := r.snapshot()
	r.ps.Publish(TopicStandings(r.key), snapshot)
	if completed {
		r.metrics.racesCompleted.Inc()
		r.log.WithField("leader", leaderCode(snapshot)).Info("race complete")
		r.ps.Publish(TopicComplete, snapshot)
	}
	return err
}

func (r *Race) reject(err error) {
	reason := reasonOther
	switch {
	case errors.Is(err, parser.ErrMalformedLine):
		reason = reasonMalformedLine
	case errors.Is(err, laptime.ErrMalformedDuration):
		reason = reasonMalformedDuration
	}
	r.metrics.linesRejected.WithLabelValues(r.key, reason).Inc()
}

func (r *Race) Snapshot() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Race) snapshot() model.Snapshot {
	return model.Snapshot{
		RaceKey:   r.key,
		FinalLap:  r.engine.FinalLap,
		Completed: r.store.RaceComplete(),
		Standings: r.engine.Rows(r.store),
	}
}

func (r *Race) RaceComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.RaceComplete()
}

// Reset clears the race in memory and in the persister so the key can hold a
// new race.
func (r *Race) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.store.Reset()
	if err := r.persister.Reset(r.key); err != nil {
		return errors.Wrapf(err, "resetting race %s", r.key)
	}
	r.log.Info("race reset")
	r.ps.Publish(TopicStandings(r.key), r.snapshot())
	return nil
}

func (r *Race) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Len() == 0
}

// save persists the race unless it holds no standings.
func (r *Race) save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store.Len() == 0 {
		return nil
	}
	if err := r.persister.Save(r.key, r.store.State()); err != nil {
		return errors.Wrapf(ErrPersist, "race %s: %v", r.key, err)
	}
	return nil
}

func leaderCode(s model.Snapshot) string {
	if len(s.Standings) == 0 {
		return ""
	}
	return s.Standings[0].Code
}
