package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/pkg/backend"
)

// Names passed to Options.Notify after the list or the busy flag changed.
const (
	Loaded  = "Loaded"
	Adding  = "Adding"
	Added   = "Added"
	Idle    = "Idle"
	Toggled = "Toggled"
	Cleared = "Cleared"
)

type Options struct {
	Identity Resolver
	Records  Records
	Objects  Objects
	Log      logrus.FieldLogger
	Notify   func(name string)
}

type Synchronizer struct {
	mux      sync.RWMutex
	identity Resolver
	records  Records
	objects  Objects
	log      logrus.FieldLogger
	notify   func(name string)
	todos    []Todo
	busy     bool
	// generation is bumped by Clear so that loads started before a sign out
	// never repopulate the list.
	generation uint64
}

func NewSynchronizer(options Options) *Synchronizer {
	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	if options.Notify == nil {
		options.Notify = func(string) {}
	}

	return &Synchronizer{
		identity: options.Identity,
		records:  options.Records,
		objects:  options.Objects,
		log:      options.Log.WithField("component", "todo"),
		notify:   options.Notify,
		todos:    []Todo{},
	}
}

// Todos returns a copy of the local list, newest first.
func (s *Synchronizer) Todos() []Todo {
	s.mux.RLock()
	defer s.mux.RUnlock()

	todos := make([]Todo, len(s.todos))
	copy(todos, s.todos)

	return todos
}

func (s *Synchronizer) Busy() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()

	return s.busy
}

func (s *Synchronizer) resolve(ctx context.Context) (*backend.Session, error) {
	session, err := s.identity.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionMissing, err)
	}

	if session == nil || session.User == nil {
		return nil, ErrSessionMissing
	}

	return session, nil
}

// Load replaces the local list with the user's rows. Failures are logged and
// leave the list as it was.
func (s *Synchronizer) Load(ctx context.Context) error {
	s.mux.RLock()
	generation := s.generation
	s.mux.RUnlock()

	session, err := s.resolve(ctx)
	if err != nil {
		s.log.WithError(err).Debug("skipping load")
		return err
	}

	todos, err := s.records.List(ctx, session.AccessToken, session.User.ID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrFetch, err)
		s.log.WithError(err).WithField("user_id", session.User.ID).Error("load failed")
		return err
	}

	s.mux.Lock()
	if s.generation != generation {
		s.mux.Unlock()
		return nil
	}

	s.todos = todos
	s.mux.Unlock()

	s.log.WithField("user_id", session.User.ID).WithField("count", len(todos)).Debug("todos loaded")
	s.notify(Loaded)

	return nil
}

// Add stores a new task, uploading file first when one is given. Nothing is
// inserted unless the upload succeeded. Only one Add runs at a time.
func (s *Synchronizer) Add(ctx context.Context, text string, file *File) (*Todo, error) {
	task := strings.TrimSpace(text)
	if task == "" {
		return nil, ErrEmptyTask
	}

	s.mux.Lock()
	if s.busy {
		s.mux.Unlock()
		return nil, ErrBusy
	}

	s.busy = true
	generation := s.generation
	s.mux.Unlock()

	s.notify(Adding)

	defer func() {
		s.mux.Lock()
		s.busy = false
		s.mux.Unlock()

		s.notify(Idle)
	}()

	session, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := s.upload(ctx, session, file)
	if err != nil {
		s.log.WithError(err).WithField("user_id", session.User.ID).Warn("upload failed")
		return nil, err
	}

	todo, err := s.insert(ctx, session, task, stored)
	if err != nil {
		s.log.WithError(err).WithField("user_id", session.User.ID).Warn("insert failed")
		return nil, err
	}

	s.mux.Lock()
	if s.generation == generation {
		s.todos = append([]Todo{*todo}, s.todos...)
	}
	s.mux.Unlock()

	s.log.WithField("user_id", session.User.ID).WithField("todo_id", todo.ID).Info("todo added")
	s.notify(Added)

	return todo, nil
}

// Upload is the outcome of the first stage of Add. A nil *Upload means no
// file was given.
type Upload struct {
	Path string
	URL  string
}

func (u *Upload) imageURL() *string {
	if u == nil {
		return nil
	}

	return &u.URL
}

func (s *Synchronizer) upload(ctx context.Context, session *backend.Session, file *File) (*Upload, error) {
	if file == nil || len(file.Data) == 0 {
		return nil, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	path := session.User.ID + "/" + id + file.ext()

	if err := s.objects.Upload(ctx, session.AccessToken, path, file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	return &Upload{Path: path, URL: s.objects.PublicURL(path)}, nil
}

func (s *Synchronizer) insert(ctx context.Context, session *backend.Session, task string, stored *Upload) (*Todo, error) {
	todo, err := s.records.Insert(ctx, session.AccessToken, NewTodo{
		Task:       task,
		IsComplete: false,
		UserID:     session.User.ID,
		ImageURL:   stored.imageURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsert, err)
	}

	return todo, nil
}

// Toggle sets the completion flag of id to !current and, once the backend
// accepted it, flips the local record. Failures are logged only.
func (s *Synchronizer) Toggle(ctx context.Context, id int64, current bool) error {
	log := s.log.WithField("todo_id", id)

	session, err := s.resolve(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUpdate, err)
		log.WithError(err).Error("toggle failed")
		return err
	}

	if err := s.records.SetComplete(ctx, session.AccessToken, id, !current); err != nil {
		err = fmt.Errorf("%w: %w", ErrUpdate, err)
		log.WithError(err).Error("toggle failed")
		return err
	}

	found := false

	s.mux.Lock()
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos[i].IsComplete = !current
			found = true
			break
		}
	}
	s.mux.Unlock()

	if found {
		s.notify(Toggled)
	}

	return nil
}

// Clear empties the local list and discards the result of any load or add
// still in flight.
func (s *Synchronizer) Clear() {
	s.mux.Lock()
	s.todos = []Todo{}
	s.generation++
	s.mux.Unlock()

	s.notify(Cleared)
}

// Find returns a copy of the local record with id.
func (s *Synchronizer) Find(id int64) (Todo, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for _, todo := range s.todos {
		if todo.ID == id {
			return todo, true
		}
	}

	return Todo{}, false
}

// IsVisible reports whether err should be shown to the user rather than only
// logged.
func IsVisible(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrEmptyTask), errors.Is(err, ErrBusy):
		return false
	case errors.Is(err, ErrFetch), errors.Is(err, ErrUpdate):
		return false
	}

	return true
}
