// Package app owns the application state shared by the browser and terminal
// interfaces: who is signed in, their todos, the draft being written and the
// notice waiting for the user.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/internal/activity"
	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/session"
	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/pkg/backend"
	"github.com/timada-org/todobase/pkg/topic"
)

const (
	MessageConfirm  = "Check your email for confirmation link!"
	MessageSignedIn = "You must be logged in!"
)

// Sessions is the part of *session.Manager the controller relies on.
type Sessions interface {
	Restore(ctx context.Context) (*backend.Session, error)
	Resolve(ctx context.Context) (*backend.Session, error)
	SignUp(ctx context.Context, email string, password string) error
	SignIn(ctx context.Context, email string, password string) error
	SignOut(ctx context.Context) error
	OnChange(handler func(change session.Change)) *core.Subscription
}

type Options struct {
	Sessions Sessions
	Records  todo.Records
	Objects  todo.Objects
	Activity activity.Publisher
	Log      logrus.FieldLogger
	// LoadTimeout bounds the reload triggered by a session change.
	LoadTimeout time.Duration
}

type Controller struct {
	mux         sync.RWMutex
	sessions    Sessions
	todos       *todo.Synchronizer
	activity    activity.Publisher
	previews    *Previews
	bus         *core.EventBus
	log         logrus.FieldLogger
	loadTimeout time.Duration

	identity     *Identity
	draft        Draft
	file         *todo.File
	notice       *Notice
	subscription *core.Subscription
	closeOnce    sync.Once
}

func New(options Options) *Controller {
	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	if options.Activity == nil {
		options.Activity = activity.Noop{}
	}

	if options.LoadTimeout <= 0 {
		options.LoadTimeout = 30 * time.Second
	}

	c := &Controller{
		sessions:    options.Sessions,
		activity:    options.Activity,
		previews:    NewPreviews(),
		bus:         core.NewEventBus(),
		log:         options.Log.WithField("component", "app"),
		loadTimeout: options.LoadTimeout,
	}

	c.todos = todo.NewSynchronizer(todo.Options{
		Identity: options.Sessions,
		Records:  options.Records,
		Objects:  options.Objects,
		Log:      options.Log,
		Notify: func(name string) {
			c.publish(TodosTopic, name, c.todos.Todos())
		},
	})

	return c
}

// Start listens to session changes and picks up the session of a previous
// run, loading its todos.
func (c *Controller) Start(ctx context.Context) error {
	subscription := c.sessions.OnChange(c.handleChange)

	c.mux.Lock()
	c.subscription = subscription
	c.mux.Unlock()

	restored, err := c.sessions.Restore(ctx)
	if err != nil {
		return err
	}

	if restored == nil {
		return nil
	}

	c.setIdentity(restored.User)
	c.publish(SessionTopic, Restored, identityOf(restored.User))

	_ = c.todos.Load(ctx)

	return nil
}

// Close stops listening to session changes and releases every preview.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mux.Lock()
		subscription := c.subscription
		c.subscription = nil
		c.mux.Unlock()

		if subscription != nil {
			subscription.Unsubscribe()
		}

		c.previews.ReleaseAll()
	})
}

func (c *Controller) handleChange(change session.Change) {
	switch change.Event {
	case session.SignedIn, session.TokenRefreshed:
		if change.Session == nil {
			return
		}

		c.setIdentity(change.Session.User)
		c.publish(SessionTopic, change.Event, identityOf(change.Session.User))

		ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
		defer cancel()

		_ = c.todos.Load(ctx)
	case session.SignedOut:
		c.clearLocal()
	}
}

func (c *Controller) setIdentity(user *backend.User) {
	c.mux.Lock()
	c.identity = identityOf(user)
	c.mux.Unlock()
}

func (c *Controller) clearLocal() {
	c.mux.Lock()
	c.identity = nil
	c.mux.Unlock()

	c.todos.Clear()
	c.resetDraft()
	c.publish(SessionTopic, session.SignedOut, nil)
}

func (c *Controller) publish(name string, eventName string, data any) {
	c.bus.Publish(core.NewEvent(name, eventName, data))
}

// Subscribe calls handler for every controller event matching filter, e.g.
// "#" or "todos".
func (c *Controller) Subscribe(filter string, handler core.Handler) (*core.Subscription, error) {
	f, err := topic.NewFilter(filter)
	if err != nil {
		return nil, err
	}

	return c.bus.Subscribe(f, handler), nil
}

func (c *Controller) Snapshot() State {
	c.mux.RLock()
	state := State{
		Draft: c.draft,
	}

	if c.identity != nil {
		identity := *c.identity
		state.Identity = &identity
	}

	if c.notice != nil {
		notice := *c.notice
		state.Notice = &notice
	}
	c.mux.RUnlock()

	state.Todos = c.todos.Todos()
	state.Busy = c.todos.Busy()

	return state
}

func (c *Controller) alert(kind string, message string) {
	notice := &Notice{Kind: kind, Message: message}

	c.mux.Lock()
	c.notice = notice
	c.mux.Unlock()

	c.publish(NoticeTopic, Alert, *notice)
}

func (c *Controller) DismissNotice() {
	c.mux.Lock()
	dismissed := c.notice != nil
	c.notice = nil
	c.mux.Unlock()

	if dismissed {
		c.publish(NoticeTopic, Dismiss, nil)
	}
}

// Register requests an account; the user is told to confirm it by email.
func (c *Controller) Register(ctx context.Context, email string, password string) error {
	if err := c.sessions.SignUp(ctx, email, password); err != nil {
		c.alert(NoticeError, backend.Message(err))
		return err
	}

	c.alert(NoticeInfo, MessageConfirm)

	return nil
}

// Authenticate signs in. The new identity arrives through the session
// change, not from here.
func (c *Controller) Authenticate(ctx context.Context, email string, password string) error {
	if err := c.sessions.SignIn(ctx, email, password); err != nil {
		c.alert(NoticeError, backend.Message(err))
		return err
	}

	return nil
}

// Deauthenticate signs out. Local state is cleared whatever the backend
// answers.
func (c *Controller) Deauthenticate(ctx context.Context) {
	if err := c.sessions.SignOut(ctx); err != nil {
		c.log.WithError(err).Warn("sign out")
	}

	c.mux.RLock()
	stale := c.identity != nil || c.draft.HasFile()
	c.mux.RUnlock()

	if stale || len(c.todos.Todos()) > 0 {
		c.clearLocal()
	}
}

// SelectFile attaches file to the draft, replacing and releasing any file
// selected before. It returns the preview id.
func (c *Controller) SelectFile(file *todo.File) string {
	id := c.previews.Register(file)

	c.mux.Lock()
	previous := c.draft.PreviewID
	c.file = file
	c.draft.FileName = file.Name
	c.draft.ContentType = file.ContentType
	c.draft.PreviewID = id
	draft := c.draft
	c.mux.Unlock()

	if previous != "" {
		c.previews.Release(previous)
	}

	c.publish(DraftTopic, Selected, draft)

	return id
}

// ClearFile drops the selected file, keeping the task text.
func (c *Controller) ClearFile() {
	c.mux.Lock()
	previous := c.draft.PreviewID
	c.file = nil
	c.draft.FileName = ""
	c.draft.ContentType = ""
	c.draft.PreviewID = ""
	draft := c.draft
	c.mux.Unlock()

	if previous == "" {
		return
	}

	c.previews.Release(previous)
	c.publish(DraftTopic, Reset, draft)
}

func (c *Controller) resetDraft() {
	c.mux.Lock()
	previous := c.draft.PreviewID
	c.draft = Draft{}
	c.file = nil
	c.mux.Unlock()

	if previous != "" {
		c.previews.Release(previous)
	}

	c.publish(DraftTopic, Reset, Draft{})
}

// finishDraft empties the task after an add and drops the file when it is
// still the one submitted. A file selected meanwhile stays for the next add.
func (c *Controller) finishDraft(submitted string) {
	c.mux.Lock()
	released := ""
	c.draft.Task = ""
	if c.draft.PreviewID == submitted {
		released = submitted
		c.file = nil
		c.draft.FileName = ""
		c.draft.ContentType = ""
		c.draft.PreviewID = ""
	}
	draft := c.draft
	c.mux.Unlock()

	if released != "" {
		c.previews.Release(released)
	}

	c.publish(DraftTopic, Reset, draft)
}

func (c *Controller) Preview(id string) (*todo.File, bool) {
	return c.previews.Get(id)
}

// Add stores text as a new todo along with the selected file, if any. The
// draft is reset only when the todo was added.
func (c *Controller) Add(ctx context.Context, text string) (*todo.Todo, error) {
	c.mux.Lock()
	c.draft.Task = text
	file := c.file
	submitted := c.draft.PreviewID
	c.mux.Unlock()

	added, err := c.todos.Add(ctx, text, file)
	if err != nil {
		if todo.IsVisible(err) {
			c.alert(NoticeError, addMessage(err))
		}
		return nil, err
	}

	c.finishDraft(submitted)
	c.announce(ctx, added, activity.Created)

	return added, nil
}

func addMessage(err error) string {
	switch {
	case errors.Is(err, todo.ErrSessionMissing):
		return MessageSignedIn
	case errors.Is(err, todo.ErrUpload):
		return "Upload error: " + backend.Message(err)
	}

	return "Error: " + backend.Message(err)
}

// Toggle flips the completion flag of id; current is the flag as displayed.
// Failures are only logged.
func (c *Controller) Toggle(ctx context.Context, id int64, current bool) error {
	if err := c.todos.Toggle(ctx, id, current); err != nil {
		return err
	}

	if updated, ok := c.todos.Find(id); ok {
		c.announce(ctx, &updated, activity.Updated)
	}

	return nil
}

func (c *Controller) announce(ctx context.Context, t *todo.Todo, name string) {
	event, err := activity.TodoEvent(t.UserID, t.ID, name, t)
	if err != nil {
		c.log.WithError(err).Error("activity event")
		return
	}

	if err := c.activity.Publish(ctx, event); err != nil {
		c.log.WithError(err).WithField("todo_id", t.ID).Error("failed to publish activity")
	}
}
