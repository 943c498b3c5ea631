package caster

import (
	"racestandings/pkg/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONChannelCaster(t *testing.T) {
	c := JSONChannelCaster[model.Snapshot]{}
	snapshot := model.Snapshot{
		RaceKey:  "r1",
		FinalLap: 4,
		Standings: []model.StandingRow{
			{Position: 1, Code: "038", PilotName: "F.MASSA", GapToLeader: "00:00:00.000"},
		},
	}

	payload, err := c.To(snapshot)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"raceKey":"r1"`)

	back, err := c.From(payload)
	require.NoError(t, err)
	assert.Equal(t, snapshot, back)

	_, err = c.From([]byte("{"))
	assert.Error(t, err)
}

func TestTextChannelCaster(t *testing.T) {
	var c ChannelCaster[model.Snapshot] = TextChannelCaster[model.Snapshot]{Format: model.Snapshot.String}

	payload, err := c.To(model.Snapshot{RaceKey: "r1", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, "race r1: 0 pilots, completed=true", string(payload))

	_, err = c.From(payload)
	assert.ErrorIs(t, err, ErrOneWay)
}
