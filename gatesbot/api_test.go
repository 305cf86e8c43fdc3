package gatesbot

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*API, *httptest.Server) {
	t.Helper()
	gin.DefaultWriter = io.Discard

	db := newTestDBI(t)
	log := testLogger(t)
	cfg := DefaultConfig()
	api := newAPI(
		cfg.API,
		NewQueueStore(db, log),
		NewGateRegistry(db, log),
		NewAnalytics(db, log),
		log,
	)

	server := httptest.NewServer(api.engine)
	t.Cleanup(server.Close)
	return api, server
}

func getJSON(t testing.TB, url string, out any) *http.Response {
	t.Helper()
	//nolint:gosec  // test server URL
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	_, server := newTestAPI(t)

	var body map[string]string
	resp := getJSON(t, server.URL+apiHealthCheck, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(xRequestIDHeader))
}

func TestGetQueueUnknownScope(t *testing.T) {
	_, server := newTestAPI(t)

	var body struct {
		GuildID   string   `json:"guild_id"`
		ChannelID string   `json:"channel_id"`
		Locked    bool     `json:"locked"`
		Revision  int64    `json:"revision"`
		Groups    []*Group `json:"groups"`
	}
	resp := getJSON(t, server.URL+"/api/queue/guild-1/channel-1", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "guild-1", body.GuildID)
	assert.Equal(t, "channel-1", body.ChannelID)
	assert.False(t, body.Locked)
	assert.Zero(t, body.Revision)
	assert.Empty(t, body.Groups)
}

func TestGetQueue(t *testing.T) {
	api, server := newTestAPI(t)
	scope := Scope{GuildID: "guild-1", ChannelID: "channel-1"}

	_, err := api.store.Update(
		context.Background(), scope, func(q *Queue) error {
			q.Place(newTestPlayer("user-1", 20), DefaultGroupSize)
			q.Place(newTestPlayer("user-2", 5), DefaultGroupSize)
			return nil
		},
	)
	require.NoError(t, err)

	var body struct {
		Revision int64    `json:"revision"`
		Groups   []*Group `json:"groups"`
	}
	resp := getJSON(t, server.URL+"/api/queue/guild-1/channel-1", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), body.Revision)
	require.Len(t, body.Groups, 2)

	// tier-sorted, like the Discord summary
	assert.Equal(t, 2, body.Groups[0].Tier)
	assert.Equal(t, 7, body.Groups[1].Tier)
}

func TestGetGates(t *testing.T) {
	api, server := newTestAPI(t)

	_, err := api.gates.Add(context.Background(), "winter", ":snowflake:")
	require.NoError(t, err)

	var body struct {
		Gates []Gate `json:"gates"`
	}
	resp := getJSON(t, server.URL+apiPathGates, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Gates, 1)
	assert.Equal(t, "winter", body.Gates[0].Name)
}
