package identity

import (
	"math/rand/v2"

	"github.com/flor3z/torn-bot/internal/guild"
)

// Keyring holds the master keys of one guild
type Keyring struct {
	keys    []guild.MasterKey
	shuffle func(n int, swap func(i, j int))
}

// NewKeyring builds a keyring, ignoring empty keys
func NewKeyring(keys []guild.MasterKey) *Keyring {
	k := &Keyring{shuffle: rand.Shuffle}
	for _, key := range keys {
		if key.Key != "" {
			k.keys = append(k.keys, key)
		}
	}
	return k
}

// Len returns the number of usable keys
func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// Order returns every key in a fresh random order
func (k *Keyring) Order() []guild.MasterKey {
	if k.Len() == 0 {
		return nil
	}

	order := make([]guild.MasterKey, len(k.keys))
	copy(order, k.keys)
	k.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}
