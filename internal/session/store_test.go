package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timada-org/todobase/internal/session"
)

func TestStores(t *testing.T) {
	auth := &fakeAuth{expiresIn: time.Hour}

	stores := map[string]func(t *testing.T) session.Store{
		"file": func(t *testing.T) session.Store {
			return session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		},
		"keyring": func(t *testing.T) session.Store {
			return session.NewKeyringStore(keyring.NewArrayKeyring(nil))
		},
		"memory": func(t *testing.T) session.Store {
			return session.NewMemoryStore(nil)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)

			loaded, err := store.Load()
			require.NoError(t, err)
			assert.Nil(t, loaded)

			require.NoError(t, store.Delete())

			saved := auth.session("access")
			require.NoError(t, store.Save(saved))

			loaded, err = store.Load()
			require.NoError(t, err)
			assert.Equal(t, saved, loaded)

			require.NoError(t, store.Delete())

			loaded, err = store.Load()
			require.NoError(t, err)
			assert.Nil(t, loaded)
		})
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := session.NewFileStore(path)

	require.NoError(t, store.Save((&fakeAuth{expiresIn: time.Hour}).session("access")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeyringRestore(t *testing.T) {
	auth := &fakeAuth{expiresIn: time.Hour}
	store := session.NewKeyringStore(keyring.NewArrayKeyring(nil))

	first := newManager(auth, store)
	require.NoError(t, first.SignIn(context.Background(), "a@x.com", "secret1"))
	first.Close()

	second := newManager(auth, store)
	defer second.Close()

	restored, err := second.Restore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "access", restored.AccessToken)
	assert.Equal(t, userID, restored.User.ID)

	require.NoError(t, second.SignOut(context.Background()))

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}
