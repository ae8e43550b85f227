// Package session owns the authenticated identity: it restores the previous
// session, signs users up, in and out, keeps the access token fresh and
// notifies subscribers of every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/pkg/backend"
	"github.com/timada-org/todobase/pkg/topic"
)

var (
	ErrAuth      = errors.New("authentication failed")
	ErrNoSession = errors.New("no active session")
)

const ChangeTopic = "auth"

const (
	SignedIn       = "SIGNED_IN"
	SignedOut      = "SIGNED_OUT"
	TokenRefreshed = "TOKEN_REFRESHED"
)

// Change is delivered to OnChange handlers. Session is nil after SignedOut.
type Change struct {
	Event   string
	Session *backend.Session
}

type Authenticator interface {
	SignUp(ctx context.Context, email string, password string, redirectTo string) error
	SignInWithPassword(ctx context.Context, email string, password string) (*backend.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*backend.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*backend.User, error)
}

type ClaimsReader interface {
	Claims(token string) (*backend.Claims, error)
}

type Options struct {
	Auth Authenticator
	// Claims, when set, vets restored tokens before they are used.
	Claims        ClaimsReader
	Store         Store
	RedirectURL   string
	RefreshMargin time.Duration
	RetryInterval time.Duration
	Log           logrus.FieldLogger
}

type Manager struct {
	mux        sync.RWMutex
	auth       Authenticator
	claims     ClaimsReader
	store      Store
	bus        *core.EventBus
	log        logrus.FieldLogger
	redirectTo string
	margin     time.Duration
	retry      time.Duration
	current    *backend.Session
	retryAt    time.Time
	refreshed  time.Time
	reschedule chan struct{}
	stop       chan struct{}
	done       chan struct{}
	started    bool
	closeOnce  sync.Once
}

func NewManager(options Options) *Manager {
	if options.Store == nil {
		options.Store = NewMemoryStore(nil)
	}

	if options.RetryInterval <= 0 {
		options.RetryInterval = 10 * time.Second
	}

	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	return &Manager{
		auth:       options.Auth,
		claims:     options.Claims,
		store:      options.Store,
		bus:        core.NewEventBus(),
		log:        options.Log.WithField("component", "session"),
		redirectTo: options.RedirectURL,
		margin:     options.RefreshMargin,
		retry:      options.RetryInterval,
		reschedule: make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// OnChange subscribes handler to session changes until the returned
// subscription is unsubscribed.
func (m *Manager) OnChange(handler func(change Change)) *core.Subscription {
	return m.bus.Subscribe(topic.MustFilter(ChangeTopic), func(event *core.Event) {
		if change, ok := event.Data.(Change); ok {
			handler(change)
		}
	})
}

func (m *Manager) publish(event string, session *backend.Session) {
	m.bus.Publish(core.NewEvent(ChangeTopic, event, Change{Event: event, Session: copySession(session)}))
}

// Start runs the background refresher until Close.
func (m *Manager) Start() {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.started {
		return
	}

	m.started = true
	go m.run()
}

func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)

		m.mux.RLock()
		started := m.started
		m.mux.RUnlock()

		if started {
			<-m.done
		}
	})
}

// Session returns a copy of the current session, nil when signed out.
func (m *Manager) Session() *backend.Session {
	m.mux.RLock()
	defer m.mux.RUnlock()

	return copySession(m.current)
}

// Restore picks up the stored session of a previous run. An expired one is
// refreshed once; anything unusable is discarded and nil is returned.
func (m *Manager) Restore(ctx context.Context) (*backend.Session, error) {
	stored, err := m.store.Load()
	if err != nil {
		m.log.WithError(err).Warn("discarding unreadable stored session")
		m.discard()
		return nil, nil
	}

	if stored == nil {
		return nil, nil
	}

	if m.claims != nil {
		claims, err := m.claims.Claims(stored.AccessToken)
		if err != nil {
			m.log.WithError(err).Warn("discarding stored session with invalid token")
			m.discard()
			return nil, nil
		}

		if stored.ExpiresAt == 0 {
			stored.ExpiresAt = claims.ExpiresAt
		}
	}

	if stored.User.Validate() != nil || stored.Expired(time.Now().Add(m.margin)) {
		refreshed, err := m.auth.RefreshSession(ctx, stored.RefreshToken)
		if err != nil {
			m.log.WithError(err).Info("stored session could not be refreshed")
			m.discard()
			return nil, nil
		}

		stored = refreshed
		m.save(stored)
	}

	m.mux.Lock()
	m.current = stored
	m.retryAt = time.Time{}
	m.mux.Unlock()

	m.wake()

	return copySession(stored), nil
}

// Resolve re-checks the current session with the backend and returns it with
// the user as the backend sees it now.
func (m *Manager) Resolve(ctx context.Context) (*backend.Session, error) {
	current := m.Session()
	if current == nil {
		return nil, ErrNoSession
	}

	user, err := m.auth.GetUser(ctx, current.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	current.User = user

	return current, nil
}

// SignUp requests an account. No session results from it: the user has to
// confirm the address first.
func (m *Manager) SignUp(ctx context.Context, email string, password string) error {
	if err := m.auth.SignUp(ctx, email, password, m.redirectTo); err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	m.log.WithField("email", email).Info("sign up requested")

	return nil
}

// SignIn only reports failure; success reaches the application through the
// SignedIn change.
func (m *Manager) SignIn(ctx context.Context, email string, password string) error {
	session, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuth, err)
	}

	m.mux.Lock()
	m.current = session
	m.retryAt = time.Time{}
	m.mux.Unlock()

	m.save(session)

	m.log.WithField("user_id", session.User.ID).Info("signed in")
	m.publish(SignedIn, session)
	m.wake()

	return nil
}

// SignOut always ends the local session; the backend error, if any, is
// returned after the SignedOut change went out.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mux.Lock()
	previous := m.current
	m.current = nil
	m.retryAt = time.Time{}
	m.mux.Unlock()

	var err error
	if previous != nil {
		err = m.auth.SignOut(ctx, previous.AccessToken)
		if err != nil {
			m.log.WithError(err).Warn("backend sign out failed")
		}
	}

	m.discard()
	m.wake()
	m.publish(SignedOut, nil)

	return err
}

func (m *Manager) save(session *backend.Session) {
	if err := m.store.Save(session); err != nil {
		m.log.WithError(err).Error("failed to persist session")
	}
}

func (m *Manager) discard() {
	if err := m.store.Delete(); err != nil {
		m.log.WithError(err).Error("failed to delete stored session")
	}
}

func (m *Manager) wake() {
	select {
	case m.reschedule <- struct{}{}:
	default:
	}
}

func (m *Manager) nextRefresh() (time.Duration, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()

	if m.current == nil || m.current.ExpiresAt == 0 {
		return 0, false
	}

	if !m.retryAt.IsZero() {
		return time.Until(m.retryAt), true
	}

	wait := time.Until(m.current.Expiry().Add(-m.margin))

	// tokens living less than the margin are refreshed once per retry interval
	if floor := time.Until(m.refreshed.Add(m.retry)); wait < floor {
		wait = floor
	}

	return wait, true
}

func (m *Manager) run() {
	defer close(m.done)

	for {
		var timer *time.Timer
		var fire <-chan time.Time

		if wait, ok := m.nextRefresh(); ok {
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-m.stop:
			stopTimer(timer)
			return
		case <-m.reschedule:
			stopTimer(timer)
		case <-fire:
			m.refresh()
		}
	}
}

func stopTimer(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

func (m *Manager) refresh() {
	m.mux.RLock()
	current := m.current
	m.mux.RUnlock()

	if current == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	next, err := m.auth.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		if current.Expired(time.Now()) {
			m.expire(current, err)
			return
		}

		m.log.WithError(err).Warn("token refresh failed, retrying")

		m.mux.Lock()
		if m.current == current {
			m.retryAt = time.Now().Add(m.retry)
		}
		m.mux.Unlock()

		return
	}

	m.mux.Lock()
	if m.current != current {
		// signed out or in again while the refresh was in flight
		m.mux.Unlock()
		return
	}

	m.current = next
	m.retryAt = time.Time{}
	m.refreshed = time.Now()
	m.mux.Unlock()

	m.save(next)
	m.log.WithField("user_id", next.User.ID).Debug("token refreshed")
	m.publish(TokenRefreshed, next)
}

func (m *Manager) expire(current *backend.Session, cause error) {
	m.mux.Lock()
	if m.current != current {
		m.mux.Unlock()
		return
	}

	m.current = nil
	m.retryAt = time.Time{}
	m.mux.Unlock()

	m.discard()
	m.log.WithError(cause).Info("session expired")
	m.publish(SignedOut, nil)
}
