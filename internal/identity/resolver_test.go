package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flor3z/torn-bot/internal/guild"
	"github.com/flor3z/torn-bot/internal/torn"
)

type call struct {
	ID     string
	Fields string
	Key    string
}

// fakeAPI answers lookups from canned responses keyed by "id|fields"
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]*torn.User
	errors    map[string]error
	badKeys   map[string]bool
	calls     []call
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		responses: make(map[string]*torn.User),
		errors:    make(map[string]error),
		badKeys:   make(map[string]bool),
	}
}

func (f *fakeAPI) User(ctx context.Context, id string, fields []string, key string) (*torn.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sel := strings.Join(fields, ",")
	f.calls = append(f.calls, call{ID: id, Fields: sel, Key: key})

	if f.badKeys[key] {
		return nil, &torn.APIError{Code: torn.CodeIncorrectKey, Message: "Incorrect key"}
	}
	if err, ok := f.errors[id+"|"+sel]; ok {
		return nil, err
	}
	if u, ok := f.responses[id+"|"+sel]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, &torn.APIError{Code: torn.CodeIncorrectID, Message: "Incorrect ID"}
}

func (f *fakeAPI) link(chatID, tornID string) {
	f.responses[chatID+"|discord"] = &torn.User{Discord: &torn.Discord{UserID: torn.ID(tornID), DiscordID: torn.ID(chatID)}}
}

func (f *fakeAPI) profile(tornID, name, chatID string, faction torn.Faction) {
	f.responses[tornID+"|profile,discord"] = &torn.User{
		Name:    name,
		Faction: faction,
		Discord: &torn.Discord{UserID: torn.ID(tornID), DiscordID: torn.ID(chatID)},
	}
}

func keyring(keys ...string) *Keyring {
	var mk []guild.MasterKey
	for i, k := range keys {
		mk = append(mk, guild.MasterKey{TornID: int64(i + 1), Key: k})
	}
	return NewKeyring(mk)
}

const (
	callerID = "227470975317311488"
	otherID  = "331234567890123456"
)

func TestResolve_Self(t *testing.T) {
	api := newFakeAPI()
	api.link(callerID, "2000607")
	api.profile("2000607", "Kivou", callerID, torn.Faction{FactionID: 100, FactionName: "Warriors", Position: "Soldier"})

	r := NewResolver(api, time.Second)
	id, err := r.Resolve(context.Background(), Self(callerID), keyring("k1"))
	require.NoError(t, err)

	assert.Equal(t, int64(2000607), id.TornID)
	assert.Equal(t, "Kivou", id.Name)
	assert.Equal(t, "Kivou [2000607]", id.Nickname())
	assert.Equal(t, "Soldier of Warriors", id.PositionRole())
	assert.Equal(t, "100", id.FactionKey())
	assert.Equal(t, callerID, id.DiscordID)

	require.Len(t, api.calls, 2)
	assert.Equal(t, call{ID: callerID, Fields: "discord", Key: "k1"}, api.calls[0])
	assert.Equal(t, call{ID: "2000607", Fields: "profile,discord", Key: "k1"}, api.calls[1])
}

func TestResolve_UnescapesNames(t *testing.T) {
	api := newFakeAPI()
	api.profile("5", "Tom &amp; Jerry", otherID, torn.Faction{FactionID: 7, FactionName: "Cats &#39;n Dogs", Position: "Leader"})

	r := NewResolver(api, time.Second)
	id, err := r.Resolve(context.Background(), ExternalAccount(callerID, "5"), keyring("k"))
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry", id.Name)
	assert.Equal(t, "Leader of Cats 'n Dogs", id.PositionRole())
}

func TestResolve_ChatAccountNotLinked(t *testing.T) {
	api := newFakeAPI()
	api.responses[otherID+"|discord"] = &torn.User{Discord: &torn.Discord{}}

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), ChatAccount(callerID, otherID), keyring("k"))
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.Len(t, api.calls, 1)
}

func TestResolve_ProfileNotLinked(t *testing.T) {
	api := newFakeAPI()
	api.profile("5", "Nobody", "", torn.Faction{})

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), ExternalAccount(callerID, "5"), keyring("k"))
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.Contains(t, err.Error(), "Nobody [5]")
}

func TestResolve_FirstLookupAPIError(t *testing.T) {
	api := newFakeAPI()
	api.errors[callerID+"|discord"] = &torn.APIError{Code: 5, Message: "Too many requests"}

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), Self(callerID), keyring("k"))

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, KindExternalAPI, idErr.Kind)
	assert.Equal(t, 5, idErr.Code)
	assert.Equal(t, "Too many requests", idErr.Message)
}

func TestResolve_UnknownExternalID(t *testing.T) {
	api := newFakeAPI()

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), ExternalAccount(callerID, "1"), keyring("k"))

	assert.ErrorIs(t, err, ErrUnknownExternalID)
	assert.NotErrorIs(t, err, ErrExternalAPI)
	assert.Contains(t, err.Error(), "torn id 1 is not known")

	require.Len(t, api.calls, 1)
	assert.Equal(t, "profile,discord", api.calls[0].Fields)
}

func TestResolve_GenericAPIErrorIsNotUnknownID(t *testing.T) {
	api := newFakeAPI()
	api.errors["9|profile,discord"] = &torn.APIError{Code: 9, Message: "API disabled"}

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), ExternalAccount(callerID, "9"), keyring("k"))
	assert.ErrorIs(t, err, ErrExternalAPI)
	assert.NotErrorIs(t, err, ErrUnknownExternalID)
}

func TestResolve_LinkMismatch(t *testing.T) {
	api := newFakeAPI()
	api.link(callerID, "2000607")
	// the account re-linked to someone else between the two lookups
	api.profile("2000607", "Kivou", otherID, torn.Faction{})

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), Self(callerID), keyring("k"))
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestResolve_UserIDMismatch(t *testing.T) {
	api := newFakeAPI()
	api.responses["5|profile,discord"] = &torn.User{
		Name:    "Kivou",
		Discord: &torn.Discord{UserID: "6", DiscordID: torn.ID(otherID)},
	}

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), ExternalAccount(callerID, "5"), keyring("k"))
	assert.ErrorIs(t, err, ErrInconsistent)
}

func TestResolve_InvalidIDsAreNeverForwarded(t *testing.T) {
	invalid := []string{"0", "-1", "-2000607", "abc", "12a", "", " ", "1.5", "<@123>"}

	for _, bad := range invalid {
		api := newFakeAPI()
		api.link(callerID, "2000607")
		api.profile("2000607", "Kivou", callerID, torn.Faction{})

		r := NewResolver(api, time.Second)

		id, err := r.Resolve(context.Background(), ChatAccount(callerID, bad), keyring("k"))
		require.NoError(t, err, bad)
		assert.Equal(t, int64(2000607), id.TornID, bad)

		_, err = r.Resolve(context.Background(), ExternalAccount(callerID, bad), keyring("k"))
		require.NoError(t, err, bad)

		for _, c := range api.calls {
			assert.NotEqual(t, bad, c.ID, "identifier %q was forwarded", bad)
			assert.Contains(t, []string{callerID, "2000607"}, c.ID)
		}
	}
}

func TestResolve_NoCallerNoLookup(t *testing.T) {
	api := newFakeAPI()

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), Ref{Caller: "0"}, keyring("k"))
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.Empty(t, api.calls)
}

func TestResolve_NoCredential(t *testing.T) {
	api := newFakeAPI()

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), Self(callerID), keyring())
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Empty(t, api.calls)
}

func TestResolve_RejectedKeyFallsBack(t *testing.T) {
	api := newFakeAPI()
	api.badKeys["bad"] = true
	api.link(callerID, "2000607")
	api.profile("2000607", "Kivou", callerID, torn.Faction{})

	r := NewResolver(api, time.Second)
	keys := keyring("bad", "good")
	// deterministic order: bad key first
	keys.shuffle = func(int, func(i, j int)) {}

	id, err := r.Resolve(context.Background(), Self(callerID), keys)
	require.NoError(t, err)
	assert.Equal(t, int64(2000607), id.TornID)
}

func TestResolve_AllKeysRejected(t *testing.T) {
	api := newFakeAPI()
	api.badKeys["a"] = true
	api.badKeys["b"] = true

	r := NewResolver(api, time.Second)
	_, err := r.Resolve(context.Background(), Self(callerID), keyring("a", "b"))

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, KindExternalAPI, idErr.Kind)
	assert.Equal(t, torn.CodeIncorrectKey, idErr.Code)
	assert.Len(t, api.calls, 2)
}

type slowAPI struct{}

func (slowAPI) User(ctx context.Context, id string, fields []string, key string) (*torn.User, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolve_TimeoutIsExternalAPIError(t *testing.T) {
	r := NewResolver(slowAPI{}, 20*time.Millisecond)
	_, err := r.Resolve(context.Background(), Self(callerID), keyring("k"))
	assert.ErrorIs(t, err, ErrExternalAPI)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseID(t *testing.T) {
	n, ok := ParseID("2000607")
	assert.True(t, ok)
	assert.Equal(t, int64(2000607), n)

	for _, bad := range []string{"0", "-3", "x", ""} {
		_, ok := ParseID(bad)
		assert.False(t, ok, bad)
	}
}

func TestKeyring_Order(t *testing.T) {
	assert.Empty(t, NewKeyring(nil).Order())

	k := NewKeyring([]guild.MasterKey{{TornID: 1, Key: ""}, {TornID: 2, Key: "k2"}, {TornID: 3, Key: "k3"}})
	assert.Equal(t, 2, k.Len())

	var owners []int64
	for _, key := range k.Order() {
		owners = append(owners, key.TornID)
	}
	assert.ElementsMatch(t, []int64{2, 3}, owners)
}
