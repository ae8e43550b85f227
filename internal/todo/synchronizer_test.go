package todo_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/internal/todo/todotest"
)

type notifications struct {
	mux   sync.Mutex
	names []string
}

func (n *notifications) add(name string) {
	n.mux.Lock()
	defer n.mux.Unlock()
	n.names = append(n.names, name)
}

func (n *notifications) list() []string {
	n.mux.Lock()
	defer n.mux.Unlock()
	return append([]string{}, n.names...)
}

func newSynchronizer(identity *todotest.Identity, remote *todotest.Backend) (*todo.Synchronizer, *notifications) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	n := &notifications{}
	s := todo.NewSynchronizer(todo.Options{
		Identity: identity,
		Records:  remote,
		Objects:  remote,
		Log:      logger,
		Notify:   n.add,
	})

	return s, n
}

func tasks(todos []todo.Todo) []string {
	names := make([]string, 0, len(todos))
	for _, t := range todos {
		names = append(names, t.Task)
	}
	return names
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the list newest first", func(t *testing.T) {
		remote := todotest.NewBackend(todotest.Seed()...)
		s, n := newSynchronizer(todotest.NewIdentity(), remote)

		require.NoError(t, s.Load(ctx))
		assert.Equal(t, []string{"Water plants", "Walk the dog"}, tasks(s.Todos()))
		assert.Equal(t, []string{todo.Loaded}, n.list())
	})

	t.Run("failure keeps the stale list", func(t *testing.T) {
		remote := todotest.NewBackend(todotest.Seed()...)
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)
		require.NoError(t, s.Load(ctx))

		remote.ListErr = todotest.ErrBackend
		err := s.Load(ctx)
		require.ErrorIs(t, err, todo.ErrFetch)
		assert.False(t, todo.IsVisible(err))
		assert.Len(t, s.Todos(), 2)
	})

	t.Run("without identity", func(t *testing.T) {
		identity := todotest.NewIdentity()
		identity.Set(nil)

		remote := todotest.NewBackend(todotest.Seed()...)
		s, _ := newSynchronizer(identity, remote)

		require.ErrorIs(t, s.Load(ctx), todo.ErrSessionMissing)
		assert.Equal(t, 0, remote.Lists)
		assert.Empty(t, s.Todos())
	})
}

func TestAdd(t *testing.T) {
	ctx := context.Background()

	t.Run("non-empty tasks insert exactly one incomplete row", func(t *testing.T) {
		for _, text := range []string{"Buy milk", "  padded  ", "x", "multi word task"} {
			remote := todotest.NewBackend()
			s, _ := newSynchronizer(todotest.NewIdentity(), remote)

			added, err := s.Add(ctx, text, nil)
			require.NoError(t, err)

			require.Len(t, remote.Inserts, 1)
			assert.Equal(t, strings.TrimSpace(text), remote.Inserts[0].Task)
			assert.False(t, remote.Inserts[0].IsComplete)
			assert.Equal(t, todotest.UserID, remote.Inserts[0].UserID)
			assert.Nil(t, remote.Inserts[0].ImageURL)

			assert.Equal(t, []todo.Todo{*added}, s.Todos())
		}
	})

	t.Run("empty tasks make no call", func(t *testing.T) {
		for _, text := range []string{"", " ", "\t\n"} {
			remote := todotest.NewBackend()
			s, n := newSynchronizer(todotest.NewIdentity(), remote)

			_, err := s.Add(ctx, text, &todo.File{Name: "a.png", Data: []byte("png")})
			require.ErrorIs(t, err, todo.ErrEmptyTask)
			assert.False(t, todo.IsVisible(err))

			assert.Equal(t, 0, remote.InsertCount())
			assert.Equal(t, 0, remote.UploadCount())
			assert.Empty(t, s.Todos())
			assert.Empty(t, n.list())
		}
	})

	t.Run("without identity", func(t *testing.T) {
		identity := todotest.NewIdentity()
		identity.Set(nil)

		remote := todotest.NewBackend()
		s, _ := newSynchronizer(identity, remote)

		_, err := s.Add(ctx, "Buy milk", nil)
		require.ErrorIs(t, err, todo.ErrSessionMissing)
		assert.True(t, todo.IsVisible(err))
		assert.Equal(t, 0, remote.InsertCount())
		assert.False(t, s.Busy())
	})

	t.Run("with image uploads first", func(t *testing.T) {
		remote := todotest.NewBackend()
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)

		file := &todo.File{Name: "Photo.PNG", ContentType: "image/png", Data: []byte("png")}

		added, err := s.Add(ctx, "Buy milk", file)
		require.NoError(t, err)

		require.Len(t, remote.Uploads, 1)
		path := remote.Uploads[0]
		assert.True(t, strings.HasPrefix(path, todotest.UserID+"/"))
		assert.True(t, strings.HasSuffix(path, ".png"))

		require.NotNil(t, added.ImageURL)
		assert.Equal(t, remote.PublicURL(path), *added.ImageURL)
	})

	t.Run("successive uploads never share a path", func(t *testing.T) {
		remote := todotest.NewBackend()
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)

		for i := 0; i < 5; i++ {
			_, err := s.Add(ctx, "same", &todo.File{Name: "a.jpg", Data: []byte("jpg")})
			require.NoError(t, err)
		}

		assert.Len(t, remote.Objects, 5)
	})

	t.Run("failed upload inserts nothing", func(t *testing.T) {
		remote := todotest.NewBackend()
		remote.UploadErr = todotest.ErrBackend
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)

		_, err := s.Add(ctx, "Buy milk", &todo.File{Name: "a.png", Data: []byte("png")})
		require.ErrorIs(t, err, todo.ErrUpload)
		require.ErrorIs(t, err, todotest.ErrBackend)
		assert.True(t, todo.IsVisible(err))

		assert.Equal(t, 1, remote.UploadCount())
		assert.Equal(t, 0, remote.InsertCount())
		assert.Empty(t, s.Todos())
		assert.False(t, s.Busy())
	})

	t.Run("failed insert leaves the list", func(t *testing.T) {
		remote := todotest.NewBackend(todotest.Seed()...)
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)
		require.NoError(t, s.Load(ctx))

		remote.InsertErr = todotest.ErrBackend

		_, err := s.Add(ctx, "Buy milk", nil)
		require.ErrorIs(t, err, todo.ErrInsert)
		assert.True(t, todo.IsVisible(err))
		assert.Len(t, s.Todos(), 2)
	})

	t.Run("second add while busy", func(t *testing.T) {
		remote := todotest.NewBackend()
		remote.Gate = make(chan struct{})
		s, n := newSynchronizer(todotest.NewIdentity(), remote)

		done := make(chan error, 1)
		go func() {
			_, err := s.Add(ctx, "first", nil)
			done <- err
		}()

		require.Eventually(t, s.Busy, time.Second, time.Millisecond)

		_, err := s.Add(ctx, "second", nil)
		require.ErrorIs(t, err, todo.ErrBusy)

		close(remote.Gate)
		require.NoError(t, <-done)

		assert.False(t, s.Busy())
		assert.Equal(t, []string{"first"}, tasks(s.Todos()))
		assert.Equal(t, []string{todo.Adding, todo.Added, todo.Idle}, n.list())
	})

	t.Run("clear during add drops the result", func(t *testing.T) {
		remote := todotest.NewBackend()
		remote.Gate = make(chan struct{})
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)

		done := make(chan error, 1)
		go func() {
			_, err := s.Add(ctx, "first", nil)
			done <- err
		}()

		require.Eventually(t, s.Busy, time.Second, time.Millisecond)
		s.Clear()
		close(remote.Gate)

		require.NoError(t, <-done)
		assert.Empty(t, s.Todos())
	})
}

func TestToggle(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip restores the flag", func(t *testing.T) {
		remote := todotest.NewBackend(todotest.Seed()...)
		s, _ := newSynchronizer(todotest.NewIdentity(), remote)
		require.NoError(t, s.Load(ctx))

		require.NoError(t, s.Toggle(ctx, 1, false))
		item, _ := s.Find(1)
		assert.True(t, item.IsComplete)

		require.NoError(t, s.Toggle(ctx, 1, true))
		item, _ = s.Find(1)
		assert.False(t, item.IsComplete)

		stored, _ := remote.Row(1)
		assert.False(t, stored.IsComplete)
		assert.Equal(t, 2, remote.Updates)
	})

	t.Run("failure leaves the flag", func(t *testing.T) {
		remote := todotest.NewBackend(todotest.Seed()...)
		s, n := newSynchronizer(todotest.NewIdentity(), remote)
		require.NoError(t, s.Load(ctx))

		remote.UpdateErr = todotest.ErrBackend

		err := s.Toggle(ctx, 2, true)
		require.ErrorIs(t, err, todo.ErrUpdate)
		assert.False(t, todo.IsVisible(err))

		item, _ := s.Find(2)
		assert.True(t, item.IsComplete)
		assert.Equal(t, []string{todo.Loaded}, n.list())
	})

	t.Run("without identity", func(t *testing.T) {
		identity := todotest.NewIdentity()
		remote := todotest.NewBackend(todotest.Seed()...)
		s, _ := newSynchronizer(identity, remote)
		require.NoError(t, s.Load(ctx))

		identity.Set(nil)

		err := s.Toggle(ctx, 1, false)
		require.ErrorIs(t, err, todo.ErrSessionMissing)
		assert.False(t, todo.IsVisible(err))
		assert.Equal(t, 0, remote.Updates)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	remote := todotest.NewBackend(todotest.Seed()...)
	s, _ := newSynchronizer(todotest.NewIdentity(), remote)
	require.NoError(t, s.Load(ctx))
	require.Len(t, s.Todos(), 2)

	s.Clear()
	assert.Empty(t, s.Todos())
}

func TestScenario(t *testing.T) {
	ctx := context.Background()

	remote := todotest.NewBackend(todotest.Seed()...)
	s, _ := newSynchronizer(todotest.NewIdentity(), remote)

	require.NoError(t, s.Load(ctx))
	assert.Equal(t, []string{"Water plants", "Walk the dog"}, tasks(s.Todos()))

	added, err := s.Add(ctx, "Buy milk", nil)
	require.NoError(t, err)

	require.Len(t, remote.Inserts, 1)
	assert.Equal(t, todo.NewTodo{Task: "Buy milk", IsComplete: false, UserID: todotest.UserID}, remote.Inserts[0])
	assert.Equal(t, []string{"Buy milk", "Water plants", "Walk the dog"}, tasks(s.Todos()))

	require.NoError(t, s.Toggle(ctx, added.ID, added.IsComplete))
	assert.True(t, s.Todos()[0].IsComplete)
}
