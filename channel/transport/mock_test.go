package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/channel"
)

func TestMockDialAndExchange(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	conn, err := m.Dial(ctx)
	require.NoError(t, err)
	mc := <-m.Dialed()
	require.Same(t, mc, m.Last())

	mc.Push([]byte("hello"))
	frame, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(frame))

	require.NoError(t, conn.Send(ctx, []byte("ping")))
	assert.Equal(t, [][]byte{[]byte("ping")}, mc.Sent())

	mc.Drop()
	_, err = conn.Receive(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.ErrorIs(t, conn.Send(ctx, []byte("x")), channel.ErrClosed)
	assert.True(t, mc.Closed())
}

func TestMockDialError(t *testing.T) {
	m := NewMock()
	boom := errors.New("refused")
	m.SetDialError(boom)

	_, err := m.Dial(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.Dials())
	assert.Nil(t, m.Last())
}

func TestKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(KafkaConfig{Topic: "t"})
	require.Error(t, err)
	_, err = NewKafka(KafkaConfig{Brokers: []string{"b:9092"}})
	require.Error(t, err)
	k, err := NewKafka(KafkaConfig{Brokers: []string{"b:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", k.Name())
}
