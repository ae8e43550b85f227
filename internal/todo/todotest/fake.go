// Package todotest provides in-memory stand-ins for the backend used by the
// todo tests and the packages built on top of it.
package todotest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/pkg/backend"
)

const UserID = "9eac6c3d-d242-48ad-a2e0-52ada6f1358f"

var ErrBackend = errors.New("backend unavailable")

// Identity resolves to Session until Session is set to nil.
type Identity struct {
	mux     sync.Mutex
	Session *backend.Session
}

func NewIdentity() *Identity {
	return &Identity{Session: NewSession()}
}

func NewSession() *backend.Session {
	return &backend.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         &backend.User{ID: UserID, Email: "a@x.com"},
	}
}

func (i *Identity) Set(session *backend.Session) {
	i.mux.Lock()
	defer i.mux.Unlock()
	i.Session = session
}

func (i *Identity) Resolve(ctx context.Context) (*backend.Session, error) {
	i.mux.Lock()
	defer i.mux.Unlock()

	if i.Session == nil {
		return nil, errors.New("no active session")
	}

	session := *i.Session
	return &session, nil
}

// Backend keeps rows and objects in memory and counts the calls it gets.
type Backend struct {
	mux       sync.Mutex
	Rows      []todo.Todo
	Objects   map[string][]byte
	ListErr   error
	InsertErr error
	UpdateErr error
	UploadErr error
	// Gate, when set, blocks Insert until it is closed.
	Gate chan struct{}

	Lists   int
	Inserts []todo.NewTodo
	Updates int
	Uploads []string
	nextID  int64
	clock   time.Time
}

func NewBackend(rows ...todo.Todo) *Backend {
	b := &Backend{
		Objects: map[string][]byte{},
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, row := range rows {
		b.Rows = append(b.Rows, row)
		if row.ID > b.nextID {
			b.nextID = row.ID
		}
		if row.CreatedAt.After(b.clock) {
			b.clock = row.CreatedAt
		}
	}

	return b
}

func (b *Backend) List(ctx context.Context, token string, userID string) ([]todo.Todo, error) {
	b.mux.Lock()
	defer b.mux.Unlock()

	b.Lists++
	if b.ListErr != nil {
		return nil, b.ListErr
	}

	todos := []todo.Todo{}
	for i := len(b.Rows) - 1; i >= 0; i-- {
		if b.Rows[i].UserID == userID {
			todos = append(todos, b.Rows[i])
		}
	}

	return todos, nil
}

func (b *Backend) Insert(ctx context.Context, token string, row todo.NewTodo) (*todo.Todo, error) {
	b.mux.Lock()
	gate := b.Gate
	b.mux.Unlock()

	if gate != nil {
		<-gate
	}

	b.mux.Lock()
	defer b.mux.Unlock()

	b.Inserts = append(b.Inserts, row)
	if b.InsertErr != nil {
		return nil, b.InsertErr
	}

	b.nextID++
	b.clock = b.clock.Add(time.Minute)

	stored := todo.Todo{
		ID:         b.nextID,
		Task:       row.Task,
		IsComplete: row.IsComplete,
		UserID:     row.UserID,
		ImageURL:   row.ImageURL,
		CreatedAt:  b.clock,
	}
	b.Rows = append(b.Rows, stored)

	return &stored, nil
}

func (b *Backend) SetComplete(ctx context.Context, token string, id int64, complete bool) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	b.Updates++
	if b.UpdateErr != nil {
		return b.UpdateErr
	}

	for i := range b.Rows {
		if b.Rows[i].ID == id {
			b.Rows[i].IsComplete = complete
		}
	}

	return nil
}

func (b *Backend) Upload(ctx context.Context, token string, path string, file *todo.File) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	b.Uploads = append(b.Uploads, path)
	if b.UploadErr != nil {
		return b.UploadErr
	}

	if _, ok := b.Objects[path]; ok {
		return errors.New("duplicate object")
	}

	b.Objects[path] = file.Data

	return nil
}

func (b *Backend) PublicURL(path string) string {
	return "https://x.example.co/storage/v1/object/public/todo-images/" + path
}

func (b *Backend) InsertCount() int {
	b.mux.Lock()
	defer b.mux.Unlock()

	return len(b.Inserts)
}

func (b *Backend) UploadCount() int {
	b.mux.Lock()
	defer b.mux.Unlock()

	return len(b.Uploads)
}

func (b *Backend) Row(id int64) (todo.Todo, bool) {
	b.mux.Lock()
	defer b.mux.Unlock()

	for _, row := range b.Rows {
		if row.ID == id {
			return row, true
		}
	}

	return todo.Todo{}, false
}

// Seed returns two rows owned by UserID, oldest first.
func Seed() []todo.Todo {
	return []todo.Todo{
		{ID: 1, Task: "Walk the dog", UserID: UserID, CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ID: 2, Task: "Water plants", UserID: UserID, IsComplete: true, CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
}

// Auth accepts any credentials unless the matching error is set.
type Auth struct {
	mux        sync.Mutex
	SignUpErr  error
	SignInErr  error
	SignOutErr error
}

func (a *Auth) Fail(signUp error, signIn error, signOut error) {
	a.mux.Lock()
	defer a.mux.Unlock()

	a.SignUpErr, a.SignInErr, a.SignOutErr = signUp, signIn, signOut
}

func (a *Auth) SignUp(ctx context.Context, email string, password string, redirectTo string) error {
	a.mux.Lock()
	defer a.mux.Unlock()

	return a.SignUpErr
}

func (a *Auth) SignInWithPassword(ctx context.Context, email string, password string) (*backend.Session, error) {
	a.mux.Lock()
	defer a.mux.Unlock()

	if a.SignInErr != nil {
		return nil, a.SignInErr
	}

	return NewSession(), nil
}

func (a *Auth) RefreshSession(ctx context.Context, refreshToken string) (*backend.Session, error) {
	return NewSession(), nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	a.mux.Lock()
	defer a.mux.Unlock()

	return a.SignOutErr
}

func (a *Auth) GetUser(ctx context.Context, accessToken string) (*backend.User, error) {
	return &backend.User{ID: UserID, Email: "a@x.com"}, nil
}
