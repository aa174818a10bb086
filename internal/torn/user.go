package torn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Selections used for user lookups
var (
	FieldsDiscord = []string{"discord"}
	FieldsProfile = []string{"profile", "discord"}
)

// ID is an identifier the API returns either as a number, a string or ""
type ID string

// UnmarshalJSON accepts numbers, strings and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// Int returns the numeric value, 0 when empty or not a number
func (id ID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Empty reports whether the API returned no value
func (id ID) Empty() bool {
	return id == "" || id == "0"
}

// Discord is the platform link of a user
type Discord struct {
	UserID    ID `json:"userID"`
	DiscordID ID `json:"discordID"`
}

// Faction is the faction section of a user profile
type Faction struct {
	Position    string `json:"position"`
	FactionID   int64  `json:"faction_id"`
	DaysIn      int    `json:"days_in_faction"`
	FactionName string `json:"faction_name"`
}

// User is a user lookup response
type User struct {
	PlayerID int64    `json:"player_id"`
	Name     string   `json:"name"`
	Level    int      `json:"level"`
	Faction  Faction  `json:"faction"`
	Discord  *Discord `json:"discord"`
}

// User looks up a user by torn ID or discord ID
func (c *Client) User(ctx context.Context, id string, fields []string, key string) (*User, error) {
	var user User
	if err := c.get(ctx, "user", id, fields, key, &user); err != nil {
		return nil, err
	}

	if user.Discord == nil {
		user.Discord = &Discord{}
	}

	return &user, nil
}
