package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/af-corp/dentassist/internal/config"
)

// KeyMetadata describes a configured key.
type KeyMetadata struct {
	Name  string
	Admin bool
}

// KeyStore resolves a key hash to its metadata. A nil result means the key is unknown.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
	// Empty reports whether no key is configured at all.
	Empty() bool
}

type staticKey struct {
	hash string
	meta KeyMetadata
}

// StaticKeyStore holds the keys listed in the auth config section.
type StaticKeyStore struct {
	keys []staticKey
}

// NewStaticKeyStore builds the store from config. api_secret counts as an admin key.
func NewStaticKeyStore(cfg config.AuthConfig) *StaticKeyStore {
	s := &StaticKeyStore{}
	if cfg.APISecret != "" {
		s.keys = append(s.keys, staticKey{hash: HashKey(cfg.APISecret), meta: KeyMetadata{Name: "api_secret", Admin: true}})
	}
	for _, k := range cfg.Keys {
		hash := strings.ToLower(strings.TrimSpace(k.Hash))
		if hash == "" {
			continue
		}
		s.keys = append(s.keys, staticKey{hash: hash, meta: KeyMetadata{Name: k.Name, Admin: k.Admin}})
	}
	return s
}

func (s *StaticKeyStore) Lookup(_ context.Context, keyHash string) (*KeyMetadata, error) {
	var found *KeyMetadata
	// Compare against every key so timing does not reveal which one matched.
	for i := range s.keys {
		if subtle.ConstantTimeCompare([]byte(s.keys[i].hash), []byte(keyHash)) == 1 {
			meta := s.keys[i].meta
			found = &meta
		}
	}
	return found, nil
}

func (s *StaticKeyStore) Empty() bool { return len(s.keys) == 0 }
