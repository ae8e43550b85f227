package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/timada-org/todobase/pkg/backend"
)

const keyringItem = "session"

// OpenKeyring opens the platform credential store under service. It fails
// when the host has none, a headless Linux box for instance.
func OpenKeyring(service string) (keyring.Keyring, error) {
	return keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
		},
	})
}

// KeyringStore keeps the session in a credential store instead of a plain
// file.
type KeyringStore struct {
	ring keyring.Keyring
}

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (s *KeyringStore) Load() (*backend.Session, error) {
	item, err := s.ring.Get(keyringItem)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var session backend.Session
	if err := json.Unmarshal(item.Data, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	return &session, nil
}

func (s *KeyringStore) Save(session *backend.Session) error {
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         keyringItem,
		Data:        b,
		Label:       "todobase session",
		Description: "access and refresh token",
	})
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	return nil
}

func (s *KeyringStore) Delete() error {
	if err := s.ring.Remove(keyringItem); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove: %w", err)
	}

	return nil
}
