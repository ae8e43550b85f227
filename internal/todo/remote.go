package todo

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/supabase-community/postgrest-go"
	storage "github.com/supabase-community/storage-go"

	"github.com/timada-org/todobase/pkg/backend"
)

const Table = "todos"

// Remote stores todos in the backend row API and images in its object
// storage. The client libraries take no context, so a cancelled ctx only
// stops calls that have not started.
type Remote struct {
	client       *backend.Client
	bucket       string
	cacheControl string
}

func NewRemote(client *backend.Client, bucket string, cacheControl string) *Remote {
	return &Remote{
		client:       client,
		bucket:       bucket,
		cacheControl: cacheControl,
	}
}

func (r *Remote) List(ctx context.Context, token string, userID string) ([]Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	todos := []Todo{}

	_, err := r.client.Rows(token).
		From(Table).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&todos)
	if err != nil {
		return nil, backend.Wrap(err)
	}

	return todos, nil
}

func (r *Remote) Insert(ctx context.Context, token string, row NewTodo) (*Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []Todo

	_, err := r.client.Rows(token).
		From(Table).
		Insert(row, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, backend.Wrap(err)
	}

	if len(rows) != 1 {
		return nil, fmt.Errorf("todo: insert returned %d rows", len(rows))
	}

	return &rows[0], nil
}

func (r *Remote) SetComplete(ctx context.Context, token string, id int64, complete bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := r.client.Rows(token).
		From(Table).
		Update(map[string]bool{"is_complete": complete}, "minimal", "").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()

	return backend.Wrap(err)
}

func (r *Remote) Upload(ctx context.Context, token string, path string, file *File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	cacheControl := r.cacheControl
	upsert := false

	_, err := r.client.Storage(token).UploadFile(r.bucket, path, bytes.NewReader(file.Data), storage.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	})

	return backend.Wrap(err)
}

func (r *Remote) PublicURL(path string) string {
	return r.client.PublicURL(r.bucket, path)
}
