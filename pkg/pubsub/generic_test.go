package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	ps := NewPubSub[int]()
	a := ps.Subscribe("standings.r1")
	b := ps.Subscribe("standings.r1")
	other := ps.Subscribe("standings.r2")

	assert.Equal(t, 2, ps.Publish("standings.r1", 7))
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)
	assert.Len(t, other, 0)

	assert.Equal(t, 0, ps.Publish("nobody", 1))
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	ps := NewBufferedPubSub[string](1)
	ch := ps.Subscribe("t")

	assert.Equal(t, 1, ps.Publish("t", "first"))
	assert.Equal(t, 0, ps.Publish("t", "second"))
	assert.Equal(t, "first", <-ch)
	assert.Equal(t, 1, ps.Publish("t", "third"))
	assert.Equal(t, "third", <-ch)
}

func TestUnsubscribe(t *testing.T) {
	ps := NewPubSub[int]()
	a := ps.Subscribe("t")
	b := ps.Subscribe("t")
	require.Equal(t, 2, ps.Subscribers("t"))

	ps.Unsubscribe("t", a)
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, ps.Subscribers("t"))
	assert.Equal(t, 1, ps.Publish("t", 3))
	assert.Equal(t, 3, <-b)

	// Unknown channels are ignored.
	ps.Unsubscribe("t", make(chan int))
	ps.Unsubscribe("t", b)
	assert.Equal(t, 0, ps.Subscribers("t"))
}

func TestClose(t *testing.T) {
	ps := NewPubSub[int]()
	a := ps.Subscribe("t")
	ps.Close()
	ps.Close()

	_, open := <-a
	assert.False(t, open)
	_, open = <-ps.Subscribe("t")
	assert.False(t, open)
	assert.Equal(t, 0, ps.Publish("t", 1))
}
