package torn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 2*time.Second)
	c.minInterval = 0
	return c
}

func TestUser_Profile(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/2000607", r.URL.Path)
		assert.Equal(t, "profile,discord", r.URL.Query().Get("selections"))
		assert.Equal(t, "abcdefghijklmnop", r.URL.Query().Get("key"))
		w.Write([]byte(`{
			"player_id": 2000607,
			"name": "Kivou",
			"faction": {"position": "Soldier", "faction_id": 100, "faction_name": "Warriors &amp; Co"},
			"discord": {"userID": 2000607, "discordID": "227470975317311488"}
		}`))
	})

	user, err := c.User(context.Background(), "2000607", FieldsProfile, "abcdefghijklmnop")
	require.NoError(t, err)
	assert.Equal(t, int64(2000607), user.PlayerID)
	assert.Equal(t, "Kivou", user.Name)
	assert.Equal(t, int64(100), user.Faction.FactionID)
	assert.Equal(t, int64(2000607), user.Discord.UserID.Int())
	assert.Equal(t, ID("227470975317311488"), user.Discord.DiscordID)
}

func TestUser_EmptyLink(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"discord": {"userID": "", "discordID": ""}}`))
	})

	user, err := c.User(context.Background(), "227470975317311488", FieldsDiscord, "k")
	require.NoError(t, err)
	assert.True(t, user.Discord.UserID.Empty())
	assert.True(t, user.Discord.DiscordID.Empty())
}

func TestUser_MissingDiscordSection(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"player_id": 1, "name": "Chedburn"}`))
	})

	user, err := c.User(context.Background(), "1", FieldsProfile, "k")
	require.NoError(t, err)
	require.NotNil(t, user.Discord)
	assert.True(t, user.Discord.DiscordID.Empty())
}

func TestUser_ErrorPayload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"code": 6, "error": "Incorrect ID"}}`))
	})

	_, err := c.User(context.Background(), "1", FieldsProfile, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, CodeIncorrectID, apiErr.Code)
	assert.Equal(t, "Incorrect ID", apiErr.Message)
	assert.False(t, apiErr.KeyRejected())
}

func TestUser_KeyRejected(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"code": 2, "error": "Incorrect key"}}`))
	})

	_, err := c.User(context.Background(), "1", FieldsProfile, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.KeyRejected())
}

func TestAPIError_KeyRejected(t *testing.T) {
	for _, code := range []int{CodeKeyEmpty, CodeIncorrectKey, CodeKeyOwnerInJail, CodeKeyDisabled, CodeAccessLevel, CodeKeyPaused} {
		assert.True(t, (&APIError{Code: code}).KeyRejected(), code)
	}
	for _, code := range []int{CodeUnknown, CodeIncorrectID, 5, CodeRequestTimedOut, CodeTransportFailure} {
		assert.False(t, (&APIError{Code: code}).KeyRejected(), code)
	}
}

func TestUser_HTTPStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.User(context.Background(), "1", FieldsProfile, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "HTTP 502")
}

func TestUser_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.User(ctx, "1", FieldsProfile, "k")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, CodeRequestTimedOut, apiErr.Code)
}

func TestFaction_Roster(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/faction/100", r.URL.Path)
		assert.Equal(t, "basic", r.URL.Query().Get("selections"))
		w.Write([]byte(`{"ID": 100, "name": "Warriors", "members": {"2000607": {"name": "Kivou", "position": "Leader"}}}`))
	})

	f, err := c.Faction(context.Background(), "100", "k")
	require.NoError(t, err)
	assert.Equal(t, "Warriors", f.Name)
	assert.True(t, f.HasMember("2000607"))
	assert.False(t, f.HasMember("1"))
}

func TestHideKey(t *testing.T) {
	msg := `Get "https://api.torn.com/user/1?key=abcdefghijklmnop": EOF`
	assert.NotContains(t, HideKey(msg), "abcdefghijklmnop")

	// discord snowflakes are longer than a key and must survive
	assert.Equal(t, "member 227470975317311488", HideKey("member 227470975317311488"))
}

func TestID_Unmarshal(t *testing.T) {
	var d Discord
	require.NoError(t, json.Unmarshal([]byte(`{"userID": 12, "discordID": null}`), &d))
	assert.Equal(t, int64(12), d.UserID.Int())
	assert.True(t, d.DiscordID.Empty())
}
