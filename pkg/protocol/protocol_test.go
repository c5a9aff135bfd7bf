package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := Decode([]byte(`{"type":"stroke_add","data":{"roomId":"r1","strokeId":"s1","point":{"x":1,"y":2}}}`))
	require.NoError(t, err)
	assert.Equal(t, EventStrokeAdd, env.Type)

	var msg StrokeAdd
	require.NoError(t, env.Payload(&msg))
	require.NoError(t, msg.Validate())
	assert.Equal(t, "s1", msg.StrokeID)
	assert.Equal(t, Point{X: 1, Y: 2}, *msg.Point)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not json", "{{{"},
		{"no type", `{"data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestPayloadWithoutData(t *testing.T) {
	env, err := Decode([]byte(`{"type":"undo"}`))
	require.NoError(t, err)

	var cmd RoomCommand
	assert.ErrorIs(t, env.Payload(&cmd), ErrMalformed)
}

func TestStrokeStartValidation(t *testing.T) {
	pt := &Point{X: 0, Y: 0}
	style := &Style{Color: "#fff", Width: 4}

	tests := []struct {
		name  string
		msg   StrokeStart
		valid bool
	}{
		{"complete", StrokeStart{RoomID: "r1", StrokeID: "s1", Point: pt, Style: style}, true},
		{"missing room", StrokeStart{StrokeID: "s1", Point: pt, Style: style}, false},
		{"missing id", StrokeStart{RoomID: "r1", Point: pt, Style: style}, false},
		{"missing point", StrokeStart{RoomID: "r1", StrokeID: "s1", Style: style}, false},
		{"missing style", StrokeStart{RoomID: "r1", StrokeID: "s1", Point: pt}, false},
		{"zero width", StrokeStart{RoomID: "r1", StrokeID: "s1", Point: pt, Style: &Style{Color: "#fff"}}, false},
		{"nan point", StrokeStart{RoomID: "r1", StrokeID: "s1", Point: &Point{X: math.NaN()}, Style: style}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformed)
			}
		})
	}
}

func TestStrokeBatchValidation(t *testing.T) {
	assert.ErrorIs(t, StrokeBatch{RoomID: "r1", StrokeID: "s1"}.Validate(), ErrMalformed)
	assert.ErrorIs(t, StrokeBatch{RoomID: "r1", StrokeID: "s1", Points: []Point{{X: math.Inf(1)}}}.Validate(), ErrMalformed)
	assert.NoError(t, StrokeBatch{RoomID: "r1", StrokeID: "s1", Points: []Point{{X: 1}, {X: 2}}}.Validate())
}

func TestCursorMoveValidation(t *testing.T) {
	x, y := 3.0, 4.0
	assert.NoError(t, CursorMove{RoomID: "r1", X: &x, Y: &y}.Validate())
	assert.ErrorIs(t, CursorMove{RoomID: "r1", X: &x}.Validate(), ErrMalformed)
	assert.ErrorIs(t, CursorMove{X: &x, Y: &y}.Validate(), ErrMalformed)
}

func TestEncodeOutboundStroke(t *testing.T) {
	data, err := Encode(EventStrokeStart, Stroke{
		ID:       "s1",
		AuthorID: "a",
		Points:   []Point{{X: 1, Y: 1}},
		Style:    Style{Color: "#000", Width: 2},
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "stroke_start", raw["type"])

	payload := raw["data"].(map[string]any)
	assert.Equal(t, "s1", payload["id"])
	assert.Equal(t, "a", payload["authorId"])
	assert.Len(t, payload["points"], 1)
}

func TestStrokeCloneIsIndependent(t *testing.T) {
	orig := Stroke{ID: "s1", Points: []Point{{X: 1}}}
	c := orig.Clone()
	c.Points[0].X = 99
	c.Points = append(c.Points, Point{X: 5})

	assert.Equal(t, 1.0, orig.Points[0].X)
	assert.Len(t, orig.Points, 1)
}

func TestIsInbound(t *testing.T) {
	assert.True(t, EventStrokeBatch.IsInbound())
	assert.True(t, EventJoinRoom.IsInbound())
	assert.False(t, EventRoomState.IsInbound())
	assert.False(t, EventType("bogus").IsInbound())
}
