package proctoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMultipleFacesIsSticky(t *testing.T) {
	s := &State{}

	s.ObserveFaces(1)
	assert.False(t, s.Snapshot().Proctoring.MultipleFaces)

	s.ObserveFaces(3)
	s.ObserveFaces(1) // back to one face, flag stays set

	snap := s.Snapshot()
	assert.True(t, snap.Proctoring.MultipleFaces)
	assert.Equal(t, 1, snap.Proctoring.FaceCount)
}

func TestStateSnapshotJSONShape(t *testing.T) {
	s := &State{}
	s.IncrTabBlur()
	s.IncrTabBlur()
	s.IncrPaste()
	s.ObserveFaces(2)

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"pasteCount": 1,
		"proctoring": {
			"tabBlurCount": 2,
			"multipleFaces": true,
			"faceCount": 2
		}
	}`, string(raw))
}
