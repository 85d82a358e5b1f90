package explorer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristate/checker"
	"veristate/fingerprint"
)

// chain is a three-state linear model: 0 -> 1 -> 2.
type chainState uint8

func (s chainState) Hash(h *fingerprint.Stream) { h.WriteUint64(uint64(s)) }

type chain struct{}

func (chain) InitStates() []chainState { return []chainState{0} }

func (chain) Actions(s chainState, actions *[]string) {
	if s < 2 {
		*actions = append(*actions, "advance")
	}
}

func (chain) NextState(s chainState, _ string) (chainState, bool) { return s + 1, true }

func (chain) Properties() []checker.Property[chainState] {
	return []checker.Property[chainState]{
		checker.Sometimes("reaches end", func(s chainState) bool { return s == 2 }),
	}
}

func newServer(t *testing.T) (*Explorer[chainState, string], *httptest.Server) {
	t.Helper()
	model := chain{}
	e := New[chainState, string](model, checker.New[chainState, string](model), nil)
	srv := httptest.NewServer(e.Handler())
	t.Cleanup(srv.Close)
	return e, srv
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(v))
	}
	return res
}

func TestServesUI(t *testing.T) {
	_, srv := newServer(t)
	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}

func TestStatusReportsPropertiesAndCounts(t *testing.T) {
	_, srv := newServer(t)

	// Trigger the background run and let it finish.
	res, err := http.Post(srv.URL+"/.runtocompletion", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)

	deadline := time.Now().Add(5 * time.Second)
	var status StatusView
	for {
		getJSON(t, srv.URL+"/.status", &status)
		if status.Done || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, status.Done)
	assert.Equal(t, 3, status.UniqueStateCount)
	require.Len(t, status.Properties, 1)
	assert.Equal(t, "sometimes", status.Properties[0].Expectation)
	assert.Equal(t, "reaches end", status.Properties[0].Name)
	require.NotNil(t, status.Properties[0].Discovery)
	// The discovery path walks all three states.
	assert.Len(t, splitPath(*status.Properties[0].Discovery), 3)
}

func splitPath(encoded string) []string {
	return strings.Split(encoded, "/")
}

func TestStatesWalkByActionIndex(t *testing.T) {
	_, srv := newServer(t)

	var inits []StateView
	getJSON(t, srv.URL+"/.states", &inits)
	require.Len(t, inits, 1)
	assert.False(t, inits[0].Terminal)

	var steps []StateView
	getJSON(t, srv.URL+"/.states/0", &steps)
	require.Len(t, steps, 1)
	assert.Equal(t, "advance", steps[0].Action)
	assert.False(t, steps[0].Terminal)

	getJSON(t, srv.URL+"/.states/0/0", &steps)
	require.Len(t, steps, 1)
	assert.True(t, steps[0].Terminal)

	// The terminal state offers no actions.
	getJSON(t, srv.URL+"/.states/0/0/0", &steps)
	assert.Empty(t, steps)
}

func TestStatesRejectsInvalidIndices(t *testing.T) {
	_, srv := newServer(t)
	res, err := http.Get(srv.URL + "/.states/7")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, err = http.Get(srv.URL + "/.states/0/banana")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
