package torn

import (
	"context"
)

// FactionMember is one entry of a faction roster
type FactionMember struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	Position string `json:"position"`
}

// FactionBasic is the basic faction selection
type FactionBasic struct {
	ID      int64                    `json:"ID"`
	Name    string                   `json:"name"`
	Tag     string                   `json:"tag"`
	Members map[string]FactionMember `json:"members"`
}

// HasMember reports whether a torn ID is on the roster
func (f *FactionBasic) HasMember(tornID string) bool {
	_, ok := f.Members[tornID]
	return ok
}

// Faction fetches the basic information and roster of a faction
func (c *Client) Faction(ctx context.Context, factionID string, key string) (*FactionBasic, error) {
	var faction FactionBasic
	if err := c.get(ctx, "faction", factionID, []string{"basic"}, key, &faction); err != nil {
		return nil, err
	}
	return &faction, nil
}
