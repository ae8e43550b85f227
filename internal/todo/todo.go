// Package todo keeps the signed-in user's task list in step with the rows
// stored by the backend.
package todo

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/timada-org/todobase/pkg/backend"
)

var (
	ErrSessionMissing = errors.New("no signed-in user")
	ErrFetch          = errors.New("failed to fetch todos")
	ErrUpload         = errors.New("failed to upload image")
	ErrInsert         = errors.New("failed to add todo")
	ErrUpdate         = errors.New("failed to update todo")
	ErrEmptyTask      = errors.New("task is empty")
	ErrBusy           = errors.New("an add is already in progress")
)

type Todo struct {
	ID         int64     `json:"id"`
	Task       string    `json:"task"`
	IsComplete bool      `json:"is_complete"`
	UserID     string    `json:"user_id"`
	ImageURL   *string   `json:"image_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewTodo is the row sent on insert; the backend assigns id and created_at.
type NewTodo struct {
	Task       string  `json:"task"`
	IsComplete bool    `json:"is_complete"`
	UserID     string  `json:"user_id"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// File is an image selected for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f *File) ext() string {
	return strings.ToLower(filepath.Ext(f.Name))
}

// Resolver returns the session of the signed-in user as the backend sees it.
type Resolver interface {
	Resolve(ctx context.Context) (*backend.Session, error)
}

type Records interface {
	List(ctx context.Context, token string, userID string) ([]Todo, error)
	Insert(ctx context.Context, token string, row NewTodo) (*Todo, error)
	SetComplete(ctx context.Context, token string, id int64, complete bool) error
}

type Objects interface {
	Upload(ctx context.Context, token string, path string, file *File) error
	PublicURL(path string) string
}
