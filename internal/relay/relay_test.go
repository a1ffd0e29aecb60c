package relay

import (
	"context"
	"testing"
	"time"

	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFansOutInOrder(t *testing.T) {
	bus := NewBus()
	a, b := bus.Relay(), bus.Relay()
	defer a.Close()
	defer b.Close()

	got := make(chan Envelope, 8)
	require.NoError(t, b.Subscribe(func(e Envelope) { got <- e }))

	for i := 1; i <= 3; i++ {
		env := Envelope{Origin: "a", ChannelID: "c1", Message: protocol.UpdateSlide(protocol.NavigationEvent{Seq: uint64(i)})}
		require.NoError(t, a.Publish(context.Background(), env))
	}
	for want := uint64(1); want <= 3; want++ {
		select {
		case e := <-got:
			assert.Equal(t, want, e.Message.Seq)
			assert.Equal(t, "a", e.Origin)
		case <-time.After(time.Second):
			t.Fatalf("envelope %d not delivered", want)
		}
	}
}

func TestMemoryClosedRejectsPublish(t *testing.T) {
	r := NewBus().Relay()
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Publish(context.Background(), Envelope{}), ErrClosed)
}

func TestEnabled(t *testing.T) {
	assert.False(t, Enabled(nil))
	assert.False(t, Enabled(Noop{}))
	assert.True(t, Enabled(NewBus().Relay()))
}
