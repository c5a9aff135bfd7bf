package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	for _, name := range []string{"spiral", "star", "wave"} {
		t.Run(name, func(t *testing.T) {
			pts, err := shape(name, 50)
			require.NoError(t, err)
			assert.Len(t, pts, 50)
			for _, p := range pts {
				assert.True(t, p.Valid())
			}
		})
	}

	_, err := shape("blob", 10)
	assert.Error(t, err)

	_, err = shape("spiral", 1)
	assert.Error(t, err)
}
