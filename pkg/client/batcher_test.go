package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

func TestBatcherDrainKeepsStrokeOrder(t *testing.T) {
	b := NewBatcher()
	b.Add("s2", pt(0, 0))
	b.Add("s1", pt(1, 1))
	b.Add("s2", pt(2, 2))

	batches := b.Drain()
	require.Len(t, batches, 2)
	assert.Equal(t, Batch{StrokeID: "s2", Points: []protocol.Point{pt(0, 0), pt(2, 2)}}, batches[0])
	assert.Equal(t, Batch{StrokeID: "s1", Points: []protocol.Point{pt(1, 1)}}, batches[1])

	assert.Nil(t, b.Drain(), "a drained batcher has nothing for the next frame")
}

func TestBatcherTake(t *testing.T) {
	b := NewBatcher()
	b.Add("s1", pt(0, 0))
	b.Add("s2", pt(1, 1))

	assert.Equal(t, []protocol.Point{pt(0, 0)}, b.Take("s1"))
	assert.Nil(t, b.Take("s1"))

	batches := b.Drain()
	require.Len(t, batches, 1)
	assert.Equal(t, "s2", batches[0].StrokeID)
}

func TestBatchFrame(t *testing.T) {
	single := Batch{StrokeID: "s1", Points: []protocol.Point{pt(1, 2)}}.Frame("r1")
	env, err := protocol.Decode(single)
	require.NoError(t, err)
	assert.Equal(t, protocol.EventStrokeAdd, env.Type)

	var add protocol.StrokeAdd
	require.NoError(t, env.Payload(&add))
	assert.NoError(t, add.Validate())
	assert.Equal(t, "r1", add.RoomID)
	assert.Equal(t, pt(1, 2), *add.Point)

	many := Batch{StrokeID: "s1", Points: []protocol.Point{pt(1, 2), pt(3, 4)}}.Frame("r1")
	env, err = protocol.Decode(many)
	require.NoError(t, err)
	assert.Equal(t, protocol.EventStrokeBatch, env.Type)

	var batch protocol.StrokeBatch
	require.NoError(t, env.Payload(&batch))
	assert.NoError(t, batch.Validate())
	assert.Len(t, batch.Points, 2)
}
