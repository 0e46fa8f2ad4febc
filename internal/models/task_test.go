package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCollectionLegacyArray(t *testing.T) {
	c, err := DecodeCollection([]byte(`[{"id":1,"text":"x","done":false}]`))
	require.NoError(t, err)
	assert.Equal(t, OrderInsertion, c.OrderMode)
	require.Len(t, c.Tasks, 1)
	assert.Equal(t, Task{ID: 1, Text: "x"}, c.Tasks[0])
}

func TestDecodeCollectionShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		mode  OrderMode
		count int
	}{
		{"current", `{"tasks":[{"id":2,"text":"a"}],"orderMode":"alphabetical"}`, OrderAlphabetical, 1},
		{"older object", `{"todos":[{"id":1,"text":"a"},{"id":2,"text":"b"}],"sortMode":"alpha"}`, OrderAlphabetical, 2},
		{"older default", `{"todos":[],"sortMode":"default"}`, OrderInsertion, 0},
		{"empty file", ``, OrderInsertion, 0},
		{"unknown mode", `{"tasks":[],"orderMode":"random"}`, OrderInsertion, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeCollection([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.mode, c.OrderMode)
			assert.Len(t, c.Tasks, tt.count)
			assert.NotNil(t, c.Tasks)
		})
	}
}

func TestDecodeCollectionCorrupt(t *testing.T) {
	_, err := DecodeCollection([]byte(`"nope"`))
	assert.ErrorIs(t, err, ErrCorruptCollection)

	_, err = DecodeCollection([]byte(`{"tasks":[`))
	assert.Error(t, err)
}

func TestParseOrderMode(t *testing.T) {
	for in, want := range map[string]OrderMode{
		"insertion":    OrderInsertion,
		"default":      OrderInsertion,
		"Alphabetical": OrderAlphabetical,
		"alpha":        OrderAlphabetical,
	} {
		got, ok := ParseOrderMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseOrderMode("newest")
	assert.False(t, ok)

	assert.Equal(t, "alpha", OrderAlphabetical.LegacyName())
	assert.Equal(t, "default", OrderInsertion.LegacyName())
}

func TestCollectionHelpers(t *testing.T) {
	c := Collection{Tasks: []Task{{ID: 1}, {ID: 3}, {ID: 2}}}
	assert.Equal(t, int64(3), c.MaxID())
	assert.Equal(t, 2, c.IndexOf(2))
	assert.Equal(t, -1, c.IndexOf(9))

	clone := c.Clone()
	clone.Tasks[0].Text = "changed"
	assert.Empty(t, c.Tasks[0].Text)
	assert.Equal(t, OrderInsertion, clone.OrderMode)
	assert.Equal(t, int64(0), EmptyCollection().MaxID())
}
