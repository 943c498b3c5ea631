package webserver

import (
	"encoding/json"
	"io"
	"net/http"
	"racestandings/pkg/model"
	"racestandings/pkg/race"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type racesResponse struct {
	Races []string `json:"races"`
}

type rejectedLine struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

type ingestResponse struct {
	Ingested  int            `json:"ingested"`
	Skipped   int            `json:"skipped"`
	Rejected  []rejectedLine `json:"rejected"`
	Completed bool           `json:"completed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (m *Manager) listRaces(w http.ResponseWriter, r *http.Request) {
	keys, err := m.races.Keys()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, racesResponse{Races: keys})
}

func (m *Manager) standings(w http.ResponseWriter, r *http.Request) {
	rc, ok := m.existingRaceFor(w, r)
	if !ok {
		return
	}

	payload, err := m.snapshotCaster(r).To(rc.Snapshot())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	_, _ = w.Write(payload)
}

func (m *Manager) ingestLines(w http.ResponseWriter, r *http.Request) {
	rc, ok := m.raceFor(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	res, err := rc.IngestBatch(strings.Split(string(body), "\n"))
	if err != nil {
		m.log.WithError(err).WithField("race", rc.Key()).Error("ingesting lines")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := ingestResponse{
		Ingested:  res.Ingested,
		Skipped:   res.Skipped,
		Rejected:  make([]rejectedLine, 0, len(res.Rejected)),
		Completed: res.Completed,
	}
	for _, le := range res.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedLine{Line: le.Number, Text: le.Line, Error: le.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *Manager) resetRace(w http.ResponseWriter, r *http.Request) {
	rc, ok := m.existingRaceFor(w, r)
	if !ok {
		return
	}
	if err := rc.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// live sends the current standings, then every update, until the client goes
// away.
func (m *Manager) live(w http.ResponseWriter, r *http.Request) {
	rc, ok := m.raceFor(w, r)
	if !ok {
		return
	}
	cc := m.snapshotCaster(r)
	messageType := websocket.TextMessage

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()

	ps := m.races.PubSub()
	topic := race.TopicStandings(rc.Key())
	updates := ps.Subscribe(topic)
	defer ps.Unsubscribe(topic, updates)

	log := m.log.WithField("race", rc.Key()).WithField("remote", r.RemoteAddr)
	log.Debug("live client connected")

	// Reader: handles pongs and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(s model.Snapshot) error {
		payload, err := cc.To(s)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, payload)
	}

	if err := send(rc.Snapshot()); err != nil {
		log.WithError(err).Debug("live client write")
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			log.Debug("live client disconnected")
			return
		case s, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := send(s); err != nil {
				log.WithError(err).Debug("live client write")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
