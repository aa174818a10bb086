// Package identity resolves a chat account to its linked game account.
package identity

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/flor3z/torn-bot/internal/torn"
)

// Lookuper is the part of the game API the resolver uses
type Lookuper interface {
	User(ctx context.Context, id string, fields []string, key string) (*torn.User, error)
}

// Identity is a resolved game account
type Identity struct {
	TornID          int64
	Name            string
	FactionID       int64
	FactionName     string
	FactionPosition string
	DiscordID       string
}

// Nickname is the display name given to a verified member
func (i *Identity) Nickname() string {
	return fmt.Sprintf("%s [%d]", i.Name, i.TornID)
}

// FactionKey is the faction ID as used in guild configurations
func (i *Identity) FactionKey() string {
	return strconv.FormatInt(i.FactionID, 10)
}

// PositionRole is the name of the role encoding the member's faction rank
func (i *Identity) PositionRole() string {
	return fmt.Sprintf("%s of %s", i.FactionPosition, i.FactionName)
}

// Ref says which account to resolve. ChatID wins over TornID; with neither
// usable the caller's own account is resolved.
type Ref struct {
	Caller string
	ChatID string
	TornID string
}

// Self resolves the caller's own account
func Self(callerID string) Ref {
	return Ref{Caller: callerID}
}

// ChatAccount resolves the account linked to a chat account
func ChatAccount(callerID, chatID string) Ref {
	return Ref{Caller: callerID, ChatID: chatID}
}

// ExternalAccount resolves a game account ID supplied by an administrator
func ExternalAccount(callerID, tornID string) Ref {
	return Ref{Caller: callerID, TornID: tornID}
}

// ParseID validates an identifier as a positive integer
func ParseID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Resolver resolves references through the game API
type Resolver struct {
	client  Lookuper
	timeout time.Duration
}

// NewResolver creates a resolver; every lookup is bounded by timeout
func NewResolver(client Lookuper, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{client: client, timeout: timeout}
}

// Resolve returns the identity behind ref
func (r *Resolver) Resolve(ctx context.Context, ref Ref, keys *Keyring) (*Identity, error) {
	if keys.Len() == 0 {
		return nil, newError(KindNoCredential, "no master key given")
	}

	if chatID, ok := ParseID(ref.ChatID); ok {
		return r.resolveChat(ctx, chatID, keys)
	}
	if tornID, ok := ParseID(ref.TornID); ok {
		return r.resolveExternal(ctx, tornID, 0, keys)
	}
	if callerID, ok := ParseID(ref.Caller); ok {
		return r.resolveChat(ctx, callerID, keys)
	}

	return nil, newError(KindNotLinked, "no account to verify")
}

// resolveChat maps a chat account to its game account, then fetches the profile
func (r *Resolver) resolveChat(ctx context.Context, chatID int64, keys *Keyring) (*Identity, error) {
	user, err := r.lookup(ctx, chatID, torn.FieldsDiscord, keys)
	if err != nil {
		return nil, externalError(err)
	}

	tornID := user.Discord.UserID.Int()
	if tornID < 1 {
		return nil, newError(KindNotLinked, "<@%d> is not officially verified by Torn", chatID)
	}

	return r.resolveExternal(ctx, tornID, chatID, keys)
}

// resolveExternal fetches the profile of a game account. When reached from a
// chat account, the returned link must point back to that same account.
func (r *Resolver) resolveExternal(ctx context.Context, tornID, viaChatID int64, keys *Keyring) (*Identity, error) {
	user, err := r.lookup(ctx, tornID, torn.FieldsProfile, keys)
	if err != nil {
		var apiErr *torn.APIError
		if errors.As(err, &apiErr) && apiErr.Code == torn.CodeIncorrectID {
			return nil, &Error{
				Kind:    KindUnknownExternalID,
				Code:    apiErr.Code,
				Message: fmt.Sprintf("torn id %d is not known", tornID),
				Err:     err,
			}
		}
		return nil, externalError(err)
	}

	link := user.Discord
	if !link.UserID.Empty() && link.UserID.Int() != tornID {
		return nil, newError(KindInconsistent, "%d != %s", tornID, link.UserID)
	}
	if viaChatID > 0 && !link.DiscordID.Empty() && link.DiscordID.Int() != viaChatID {
		return nil, newError(KindInconsistent, "discord %d != %s", viaChatID, link.DiscordID)
	}

	if link.DiscordID.Empty() {
		return nil, newError(KindNotLinked, "%s [%d] is not officially verified by Torn", html.UnescapeString(user.Name), tornID)
	}

	return &Identity{
		TornID:          tornID,
		Name:            html.UnescapeString(user.Name),
		FactionID:       user.Faction.FactionID,
		FactionName:     html.UnescapeString(user.Faction.FactionName),
		FactionPosition: html.UnescapeString(user.Faction.Position),
		DiscordID:       string(link.DiscordID),
	}, nil
}

// lookup tries the guild keys in random order, moving on only when the
// provider rejects the key itself
func (r *Resolver) lookup(ctx context.Context, id int64, fields []string, keys *Keyring) (*torn.User, error) {
	var lastErr error
	for _, key := range keys.Order() {
		user, err := r.lookupWithKey(ctx, id, fields, key.Key)
		if err == nil {
			return user, nil
		}

		var apiErr *torn.APIError
		if !errors.As(err, &apiErr) || !apiErr.KeyRejected() {
			return nil, err
		}

		slog.Warn("Master key rejected", "owner", key.TornID, "code", apiErr.Code)
		lastErr = fmt.Errorf("master key [%d]: %w", key.TornID, err)
	}

	if lastErr == nil {
		return nil, newError(KindNoCredential, "no master key given")
	}
	return nil, lastErr
}

func (r *Resolver) lookupWithKey(ctx context.Context, id int64, fields []string, key string) (*torn.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.client.User(ctx, strconv.FormatInt(id, 10), fields, key)
}

// externalError classifies a lookup failure, keeping already classified errors
func externalError(err error) error {
	var idErr *Error
	if errors.As(err, &idErr) {
		return err
	}

	e := &Error{Kind: KindExternalAPI, Message: torn.HideKey(err.Error()), Err: err}
	var apiErr *torn.APIError
	if errors.As(err, &apiErr) {
		e.Code = apiErr.Code
		e.Message = apiErr.Message
	}
	return e
}
