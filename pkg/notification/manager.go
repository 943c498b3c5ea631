// Package notification tells the outside world when a race completes.
package notification

import (
	"context"
	"fmt"
	"racestandings/pkg/model"
	"racestandings/pkg/pubsub"
	"racestandings/pkg/race"
	"racestandings/pkg/render"

	"github.com/nikoksr/notify"
	"github.com/sirupsen/logrus"
)

const podiumSize = 3

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Send(_ context.Context, subject, message string) error {
	l.Log.WithField("subject", subject).Info("\n" + message)
	return nil
}

type Manager struct {
	ctx       context.Context
	ps        *pubsub.PubSub[model.Snapshot]
	completed <-chan model.Snapshot
	log       logrus.FieldLogger
	notifier  *notify.Notify
}

// NewManager subscribes to race completions right away, so races completed
// before Start runs are still notified.
func NewManager(ctx context.Context, ps *pubsub.PubSub[model.Snapshot], log logrus.FieldLogger, services ...notify.Notifier) *Manager {
	return &Manager{
		ctx:       ctx,
		ps:        ps,
		completed: ps.Subscribe(race.TopicComplete),
		log:       log,
		notifier:  notify.NewWithServices(services...),
	}
}

// Start sends a notification for every completed race until the context is
// done or the pub/sub is closed.
func (m *Manager) Start() {
	defer m.ps.Unsubscribe(race.TopicComplete, m.completed)

	for {
		select {
		case <-m.ctx.Done():
			return
		case snapshot, ok := <-m.completed:
			if !ok {
				return
			}
			m.handleNotification(snapshot)
		}
	}
}

func (m *Manager) handleNotification(snapshot model.Snapshot) {
	subject, message := completionMessage(snapshot)
	m.log.WithField("race", snapshot.RaceKey).Info("sending race complete notification")
	if err := m.notifier.Send(m.ctx, subject, message); err != nil {
		m.log.WithError(err).WithField("race", snapshot.RaceKey).Error("notifying race complete")
	}
}

func completionMessage(snapshot model.Snapshot) (string, string) {
	subject := fmt.Sprintf("Race %s complete after %d laps", snapshot.RaceKey, snapshot.FinalLap)
	return subject, render.Podium(snapshot, podiumSize)
}
