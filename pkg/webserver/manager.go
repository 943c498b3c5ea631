// Package webserver exposes race standings over HTTP and pushes live updates
// over websockets.
package webserver

import (
	"context"
	"net/http"
	"racestandings/pkg/caster"
	"racestandings/pkg/model"
	"racestandings/pkg/race"
	"racestandings/pkg/render"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAddress = ":8080"

	maxBodyBytes = 4 << 20
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

type Manager struct {
	r        *mux.Router
	races    *race.Manager
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewManager builds the router. Metrics are served from gatherer when it is
// not nil.
func NewManager(races *race.Manager, log logrus.FieldLogger, gatherer prometheus.Gatherer) *Manager {
	m := &Manager{
		r:     mux.NewRouter(),
		races: races,
		log:   log,
	}

	m.rootHandlers(gatherer)
	m.raceHandlers()
	return m
}

func (m *Manager) Router() *mux.Router {
	return m.r
}

func (m *Manager) rootHandlers(gatherer prometheus.Gatherer) {
	m.r.HandleFunc("/races", m.listRaces).Methods(http.MethodGet)
	if gatherer != nil {
		m.r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

func (m *Manager) raceHandlers() {
	sr := m.r.PathPrefix("/races/{race}").Subrouter()
	sr.HandleFunc("/standings", m.standings).Methods(http.MethodGet)
	sr.HandleFunc("/lines", m.ingestLines).Methods(http.MethodPost)
	sr.HandleFunc("/live", m.live).Methods(http.MethodGet)
	m.r.HandleFunc("/races/{race}", m.resetRace).Methods(http.MethodDelete)
}

// Debug logs every registered route.
func (m *Manager) Debug() {
	_ = m.r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		m.log.WithField("methods", strings.Join(methods, ",")).Debugf("route %s", pathTemplate)
		return nil
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (m *Manager) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddress
	}
	srv := &http.Server{
		Addr:         addr,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      m.r,
	}

	errChan := make(chan error, 1)
	go func() {
		m.log.Infof("webserver listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "webserver")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.log.Info("webserver shutting down")
	return errors.Wrap(srv.Shutdown(shutdownCtx), "webserver shutdown")
}

// raceFor opens the race named in the route, creating it when needed.
func (m *Manager) raceFor(w http.ResponseWriter, r *http.Request) (*race.Race, bool) {
	return m.resolve(w, r, m.races.Race)
}

// existingRaceFor is raceFor for routes that must not create races.
func (m *Manager) existingRaceFor(w http.ResponseWriter, r *http.Request) (*race.Race, bool) {
	return m.resolve(w, r, m.races.Existing)
}

func (m *Manager) resolve(w http.ResponseWriter, r *http.Request, open func(string) (*race.Race, error)) (*race.Race, bool) {
	rc, err := open(mux.Vars(r)["race"])
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, race.ErrInvalidKey):
			status = http.StatusBadRequest
		case errors.Is(err, race.ErrUnknownRace):
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return nil, false
	}
	return rc, true
}

func (m *Manager) snapshotCaster(r *http.Request) caster.ChannelCaster[model.Snapshot] {
	if r.URL.Query().Get("format") == "text" {
		return caster.TextChannelCaster[model.Snapshot]{Format: render.StandingsString}
	}
	return caster.JSONChannelCaster[model.Snapshot]{}
}
