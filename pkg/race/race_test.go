package race

import (
	"errors"
	"racestandings/pkg/laptime"
	"racestandings/pkg/model"
	"racestandings/pkg/parser"
	"racestandings/pkg/pubsub"
	"racestandings/pkg/standings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var raceLines = []string{
	"Hora                               Piloto             Nº Volta   Tempo Volta       Velocidade média da volta",
	"23:49:08.277      038 – F.MASSA                           1\t\t1:02.852                        44,275",
	"23:49:10.858      033 – R.BARRICHELLO                     1\t\t1:04.352                        43,243",
	"23:50:11.447      038 – F.MASSA                           2\t\t1:03.170                        44,053",
	"23:50:14.860      033 – R.BARRICHELLO                     2\t\t1:04.002                        43,48",
}

type failingPersister struct {
	*MemoryPersister
}

func (failingPersister) Save(string, standings.State) error {
	return errors.New("disk full")
}

func newTestManager(t *testing.T, cfg Config, persister Persister) (*Manager, *Metrics) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	metrics := NewMetrics(prometheus.NewRegistry())
	m := NewManager(cfg, persister, pubsub.NewPubSub[model.Snapshot](), WithLogger(logger), WithMetrics(metrics))
	t.Cleanup(func() { _ = m.Close() })
	return m, metrics
}

func TestRaceIngestLine(t *testing.T) {
	m, metrics := newTestManager(t, DefaultConfig(), nil)
	r, err := m.Race("monza")
	require.NoError(t, err)

	updates := m.PubSub().Subscribe(TopicStandings("monza"))

	out, err := r.IngestLine(raceLines[1])
	require.NoError(t, err)
	assert.Equal(t, "038", out.Standing.PilotCode)
	assert.Equal(t, 1, out.Standing.FinishingPosition)

	snapshot := <-updates
	assert.Equal(t, "monza", snapshot.RaceKey)
	require.Len(t, snapshot.Standings, 1)
	assert.Equal(t, "F.MASSA", snapshot.Standings[0].PilotName)

	_, err = r.IngestLine("   ")
	assert.Equal(t, parser.ErrBlankLine, err)

	_, err = r.IngestLine("23:49:08.277 038 F.MASSA 1")
	assert.True(t, errors.Is(err, parser.ErrMalformedLine))

	_, err = r.IngestLine("23:49:08.277 038 F.MASSA 2 62.852 44,275")
	assert.True(t, errors.Is(err, laptime.ErrMalformedDuration))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.linesIngested.WithLabelValues("monza")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.linesRejected.WithLabelValues("monza", reasonMalformedLine)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.linesRejected.WithLabelValues("monza", reasonMalformedDuration)))
	assert.Len(t, r.Snapshot().Standings, 1)
}

func TestRaceIngestBatch(t *testing.T) {
	persister := NewMemoryPersister()
	m, _ := newTestManager(t, Config{FinalLap: 2, BatchSize: 2}, persister)
	r, err := m.Race("interlagos")
	require.NoError(t, err)

	updates := m.PubSub().Subscribe(TopicStandings("interlagos"))
	complete := m.PubSub().Subscribe(TopicComplete)

	lines := append([]string{}, raceLines...)
	lines = append(lines, "", "# pit lane closed", "garbage")

	res, err := r.IngestBatch(lines)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Ingested)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 8, res.Rejected[0].Number)
	assert.True(t, errors.Is(res.Rejected[0], parser.ErrMalformedLine))
	assert.True(t, res.Completed)

	// One publication per batch.
	assert.Len(t, updates, 1)
	done := <-complete
	assert.True(t, done.Completed)
	require.Len(t, done.Standings, 2)
	assert.Equal(t, "038", done.Standings[0].Code)
	assert.Equal(t, "00:00:02.332", done.Standings[1].GapToLeader)

	state, err := persister.Load("interlagos")
	require.NoError(t, err)
	assert.Len(t, state.Laps, 4)
	assert.True(t, state.Completed)
	assert.True(t, r.RaceComplete())
}

func TestRaceIngestBatchMatchesSequentialIngest(t *testing.T) {
	tests := []struct {
		name     string
		finalLap int
		lines    []string
	}{
		{name: "timing log", finalLap: 2, lines: raceLines[1:]},
		{name: "repeated lap after completion", finalLap: 2, lines: []string{
			"23:49:08.277 A1 ALPHA 1 1:02.852 44,275",
			"23:50:11.447 A1 ALPHA 2 1:03.170 44,053",
			"23:50:12.000 A1 ALPHA 1 1:02.852 44,275",
		}},
		{name: "new pilot after completion", finalLap: 2, lines: []string{
			"23:49:08.277 A1 ALPHA 1 1:02.852 44,275",
			"23:50:11.447 A1 ALPHA 2 1:03.170 44,053",
			"23:50:12.000 B2 BRAVO 1 1:04.352 43,243",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, Config{FinalLap: tt.finalLap, BatchSize: 1000}, nil)
			complete := m.PubSub().Subscribe(TopicComplete)

			batched, err := m.Race("batched")
			require.NoError(t, err)
			res, err := batched.IngestBatch(tt.lines)
			require.NoError(t, err)

			sequential, err := m.Race("sequential")
			require.NoError(t, err)
			var fired bool
			for _, line := range tt.lines {
				out, err := sequential.IngestLine(line)
				require.NoError(t, err)
				fired = fired || out.RaceCompleted
			}

			a, b := batched.Snapshot(), sequential.Snapshot()
			assert.Equal(t, a.Standings, b.Standings)
			assert.Equal(t, b.Completed, a.Completed)
			assert.Equal(t, fired, res.Completed)
			assert.True(t, a.Completed)
			assert.Len(t, complete, 2)
		})
	}
}

func TestRacePersistFailureKeepsStandings(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig(), failingPersister{NewMemoryPersister()})
	r, err := m.Race("spa")
	require.NoError(t, err)

	out, err := r.IngestLine(raceLines[1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersist))
	assert.Equal(t, "038", out.Standing.PilotCode)
	assert.Len(t, r.Snapshot().Standings, 1)
}

func TestRaceReset(t *testing.T) {
	persister := NewMemoryPersister()
	m, _ := newTestManager(t, DefaultConfig(), persister)
	r, err := m.Race("imola")
	require.NoError(t, err)
	_, err = r.IngestLine(raceLines[1])
	require.NoError(t, err)

	require.NoError(t, r.Reset())
	assert.Empty(t, r.Snapshot().Standings)
	state, err := persister.Load("imola")
	require.NoError(t, err)
	assert.True(t, state.Empty())
}

func TestRaceCompletionPublishedOnce(t *testing.T) {
	m, metrics := newTestManager(t, Config{FinalLap: 1, BatchSize: 1}, nil)
	r, err := m.Race("solo")
	require.NoError(t, err)
	complete := m.PubSub().Subscribe(TopicComplete)

	out, err := r.IngestLine(raceLines[1])
	require.NoError(t, err)
	assert.True(t, out.RaceCompleted)
	out, err = r.IngestLine(raceLines[1])
	require.NoError(t, err)
	assert.False(t, out.RaceCompleted)

	assert.Len(t, complete, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.racesCompleted))
}

func TestManagerRestoresFromPersister(t *testing.T) {
	persister := NewMemoryPersister()
	m, _ := newTestManager(t, DefaultConfig(), persister)
	r, err := m.Race("silverstone")
	require.NoError(t, err)
	_, err = r.IngestBatch(raceLines)
	require.NoError(t, err)
	want := r.Snapshot()

	other, _ := newTestManager(t, DefaultConfig(), persister)
	restored, err := other.Race("silverstone")
	require.NoError(t, err)
	assert.Equal(t, want, restored.Snapshot())

	same, err := other.Race("silverstone")
	require.NoError(t, err)
	assert.Same(t, restored, same)

	_, ok := other.Lookup("nope")
	assert.False(t, ok)
}

func TestManagerKeys(t *testing.T) {
	persister := NewMemoryPersister()
	require.NoError(t, persister.Save("stored", standings.State{}))
	m, _ := newTestManager(t, DefaultConfig(), persister)

	opened, err := m.Race("opened")
	require.NoError(t, err)
	_, err = m.Race("idle")
	require.NoError(t, err)

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"stored"}, keys, "open races without standings are not listed")

	_, err = opened.IngestLine(raceLines[1])
	require.NoError(t, err)
	keys, err = m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"opened", "stored"}, keys)
}

func TestManagerExisting(t *testing.T) {
	persister := NewMemoryPersister()
	m, _ := newTestManager(t, DefaultConfig(), persister)

	_, err := m.Existing("monza")
	assert.True(t, errors.Is(err, ErrUnknownRace))
	_, ok := m.Lookup("monza")
	assert.False(t, ok)

	_, err = m.Existing("bad key")
	assert.True(t, errors.Is(err, ErrInvalidKey))

	opened, err := m.Race("monza")
	require.NoError(t, err)
	got, err := m.Existing("monza")
	require.NoError(t, err)
	assert.Same(t, opened, got)

	_, err = opened.IngestLine(raceLines[1])
	require.NoError(t, err)
	other, _ := newTestManager(t, DefaultConfig(), persister)
	restored, err := other.Existing("monza")
	require.NoError(t, err)
	assert.Len(t, restored.Snapshot().Standings, 1)
}

func TestManagerCloseSkipsEmptyRaces(t *testing.T) {
	persister := NewMemoryPersister()
	logger, _ := test.NewNullLogger()
	m := NewManager(DefaultConfig(), persister, nil, WithLogger(logger))

	_, err := m.Race("idle")
	require.NoError(t, err)
	busy, err := m.Race("busy")
	require.NoError(t, err)
	_, err = busy.IngestLine(raceLines[1])
	require.NoError(t, err)

	require.NoError(t, m.Close())
	keys, err := persister.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"busy"}, keys)
}

func TestManagerRejectsInvalidKeys(t *testing.T) {
	m, _ := newTestManager(t, DefaultConfig(), nil)
	for _, key := range []string{"", "a/b", "with space", string(make([]byte, 65))} {
		_, err := m.Race(key)
		assert.True(t, errors.Is(err, ErrInvalidKey), "%q", key)
	}
	assert.True(t, ValidKey("3f1c2a9e-8d7b-4c1e-9f0a-1b2c3d4e5f60"))
}

func TestManagerRejectsCorruptState(t *testing.T) {
	persister := NewMemoryPersister()
	require.NoError(t, persister.Save("broken", standings.State{
		Standings: []model.Standing{{ID: 1, PilotCode: "ghost"}},
	}))
	m, _ := newTestManager(t, DefaultConfig(), persister)

	_, err := m.Race("broken")
	assert.True(t, errors.Is(err, standings.ErrInvalidState))
}

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(DefaultConfig(), nil, nil)
	defer m.Close()
	assert.NotNil(t, m.PubSub())
	assert.Equal(t, logrus.StandardLogger(), m.log)
}
