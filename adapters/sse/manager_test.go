package sse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"geargrid/adapters/sse"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
	return Message{}
}

func TestNewConnectionManager(t *testing.T) {
	_, err := sse.NewConnectionManager[Message](nil)
	assert.Error(t, err)
}

func TestConnectionManager(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := chanSource[Message]{ch: make(chan Message)}
	cm, err := sse.NewConnectionManager[Message](source,
		sse.WithLogger[Message](discardLogger),
		sse.WithBufferSize[Message](4),
		sse.WithChannelFunc(func(m Message) []string { return []string{"*", m.Topic} }),
	)
	require.NoError(t, err)
	cm.Start()
	defer cm.Done()

	all, err := cm.Subscribe("*")
	require.NoError(t, err)
	red, err := cm.Subscribe("red")
	require.NoError(t, err)

	source.ch <- Message{Topic: "blue", Data: "1"}
	source.ch <- Message{Topic: "red", Data: "2"}

	assert.Equal(t, "1", receive(t, all).Data)
	assert.Equal(t, "2", receive(t, all).Data)
	assert.Equal(t, "2", receive(t, red).Data)

	cm.Unsubscribe("red", red)
	_, ok := <-red
	assert.False(t, ok, "channel should be closed")
}

func TestConnectionManager_Done(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := chanSource[Message]{ch: make(chan Message)}
	cm, err := sse.NewConnectionManager[Message](source, sse.WithLogger[Message](discardLogger))
	require.NoError(t, err)
	cm.Start()

	sub, err := cm.Subscribe("")
	require.NoError(t, err)

	cm.Done()
	_, ok := <-sub
	assert.False(t, ok, "subscribers should be closed")

	_, err = cm.Subscribe("")
	assert.ErrorIs(t, err, sse.ErrManagerClosed)
	cm.Done()
}

func TestConnectionManager_SourceClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	source := chanSource[Message]{ch: make(chan Message)}
	cm, err := sse.NewConnectionManager[Message](source, sse.WithLogger[Message](discardLogger))
	require.NoError(t, err)
	cm.Start()
	close(source.ch)
	cm.Done()
}
