package todo_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/internal/todo/todotest"
	"github.com/timada-org/todobase/pkg/backend"
)

func newRemote(t *testing.T, handler http.HandlerFunc) *todo.Remote {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := backend.New(backend.ClientOptions{URL: server.URL, AnonKey: "anon"})
	require.NoError(t, err)

	return todo.NewRemote(client, "todo-images", "3600")
}

func TestRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/rest/v1/todos", r.URL.Path)
			assert.Equal(t, "*", r.URL.Query().Get("select"))
			assert.Equal(t, "eq."+todotest.UserID, r.URL.Query().Get("user_id"))
			assert.True(t, strings.HasPrefix(r.URL.Query().Get("order"), "created_at.desc"))
			assert.Equal(t, "anon", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `[
				{"id":2,"task":"Water plants","is_complete":true,"user_id":"`+todotest.UserID+`","image_url":null,"created_at":"2024-01-01T10:00:00.123456+00:00"},
				{"id":1,"task":"Walk the dog","is_complete":false,"user_id":"`+todotest.UserID+`","image_url":"https://x/img.png","created_at":"2024-01-01T09:00:00+00:00"}
			]`)
		})

		todos, err := remote.List(ctx, "access", todotest.UserID)
		require.NoError(t, err)
		require.Len(t, todos, 2)

		assert.Equal(t, int64(2), todos[0].ID)
		assert.True(t, todos[0].IsComplete)
		assert.Nil(t, todos[0].ImageURL)
		assert.Equal(t, 10, todos[0].CreatedAt.Hour())

		require.NotNil(t, todos[1].ImageURL)
		assert.Equal(t, "https://x/img.png", *todos[1].ImageURL)
	})

	t.Run("insert", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Contains(t, r.Header.Get("Prefer"), "return=representation")

			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"task":"Buy milk","is_complete":false,"user_id":"`+todotest.UserID+`"}`, string(body))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id":3,"task":"Buy milk","is_complete":false,"user_id":"`+todotest.UserID+`","image_url":null,"created_at":"2024-01-02T00:00:00+00:00"}]`)
		})

		added, err := remote.Insert(ctx, "access", todo.NewTodo{Task: "Buy milk", UserID: todotest.UserID})
		require.NoError(t, err)
		assert.Equal(t, int64(3), added.ID)
	})

	t.Run("insert without representation", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[]`)
		})

		_, err := remote.Insert(ctx, "access", todo.NewTodo{Task: "Buy milk", UserID: todotest.UserID})
		require.Error(t, err)
	})

	t.Run("row level denial", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"code":"42501","details":null,"hint":null,"message":"new row violates row-level security policy for table \"todos\""}`)
		})

		_, err := remote.Insert(ctx, "access", todo.NewTodo{Task: "x", UserID: todotest.UserID})
		require.Error(t, err)
		assert.Contains(t, backend.Message(err), "row-level security")
	})

	t.Run("cancelled context", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("request should not be sent")
		})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := remote.List(cancelled, "access", todotest.UserID)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("set complete", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "eq.3", r.URL.Query().Get("id"))

			var patch map[string]bool
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			assert.Equal(t, map[string]bool{"is_complete": true}, patch)

			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, remote.SetComplete(ctx, "access", 3, true))
	})

	t.Run("upload", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/storage/v1/object/todo-images/"+todotest.UserID+"/abc.png", r.URL.Path)
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			assert.Equal(t, "max-age=3600", r.Header.Get("cache-control"))
			assert.Equal(t, "false", r.Header.Get("x-upsert"))
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"Key":"todo-images/`+todotest.UserID+`/abc.png"}`)
		})

		err := remote.Upload(ctx, "access", todotest.UserID+"/abc.png", &todo.File{
			Name: "abc.png", ContentType: "image/png", Data: []byte("png"),
		})
		require.NoError(t, err)
		assert.Contains(t, remote.PublicURL(todotest.UserID+"/abc.png"), "/storage/v1/object/public/todo-images/")
	})

	t.Run("duplicate object", func(t *testing.T) {
		remote := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
		})

		err := remote.Upload(ctx, "access", "x/abc.png", &todo.File{Data: []byte("png")})
		require.Error(t, err)
		assert.Contains(t, backend.Message(err), "The resource already exists")
	})
}
