package checker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/fingerprint"
)

func TestPathFromFingerprints(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	fps := []fingerprint.Fingerprint{
		fingerprint.Of(eqState{0, 0}),
		fingerprint.Of(eqState{0, 1}),
		fingerprint.Of(eqState{1, 1}),
		fingerprint.Of(eqState{2, 1}),
	}
	path, err := pathFromFingerprints[eqState, guess](model, nil, fps)
	require.NoError(t, err)
	assert.Equal(t, eqState{2, 1}, path.LastState())
	assert.Equal(t, []guess{increaseY, increaseX, increaseX}, path.Actions())
	assert.Equal(t, 4, path.Len())
}

func TestPathFromFingerprintsRejectsUnknownInit(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	_, err := pathFromFingerprints[eqState, guess](model, nil, []fingerprint.Fingerprint{
		fingerprint.Of(eqState{9, 9}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no initial state")
}

func TestPathFromFingerprintsRejectsBrokenChain(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	_, err := pathFromFingerprints[eqState, guess](model, nil, []fingerprint.Fingerprint{
		fingerprint.Of(eqState{0, 0}),
		fingerprint.Of(eqState{5, 5}), // not a successor of (0,0)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no successor")
}

func TestPathFromActions(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	path, ok := PathFromActions[eqState, guess](model, eqState{}, []guess{increaseX, increaseY})
	require.True(t, ok)
	assert.Equal(t, eqState{1, 1}, path.LastState())

	_, ok = PathFromActions[eqState, guess](model, eqState{3, 3}, []guess{increaseX})
	assert.False(t, ok, "unknown initial state must be rejected")
}

func TestPathEncode(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	path, ok := PathFromActions[eqState, guess](model, eqState{}, []guess{increaseX})
	require.True(t, ok)
	encoded := path.Encode()
	parts := strings.Split(encoded, "/")
	require.Len(t, parts, 2)
	assert.Equal(t, fingerprint.Of(eqState{0, 0}).String(), parts[0])
	assert.Equal(t, fingerprint.Of(eqState{1, 0}).String(), parts[1])
}

func TestPathStringNamesActionsAndLastState(t *testing.T) {
	model := linearEquation{a: 2, b: 10, c: 14}
	path, ok := PathFromActions[eqState, guess](model, eqState{}, []guess{increaseX, increaseX})
	require.True(t, ok)
	s := path.String()
	assert.Contains(t, s, "IncreaseX")
	assert.Contains(t, s, "== LAST STATE ==")
}
