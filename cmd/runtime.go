package cmd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/internal/activity"
	"github.com/timada-org/todobase/internal/app"
	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/session"
	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/pkg/backend"
)

// runtime is everything a front-end needs, wired from the config.
type runtime struct {
	config   *core.Config
	log      *logrus.Logger
	verifier *backend.Verifier
	sessions *session.Manager
	activity activity.Publisher
	ctrl     *app.Controller
}

func newRuntime(config *core.Config, log *logrus.Logger) (*runtime, error) {
	client, err := backend.New(backend.ClientOptions{
		URL:     config.Backend.URL,
		AnonKey: config.Backend.AnonKey,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := backend.NewVerifier(config.Backend.JwksURL, log)
	if err != nil {
		return nil, err
	}

	r := &runtime{config: config, log: log, verifier: verifier}

	r.sessions = session.NewManager(session.Options{
		Auth:          client,
		Claims:        verifier,
		Store:         sessionStore(config, log),
		RedirectURL:   redirectURL(config),
		RefreshMargin: time.Duration(config.Session.RefreshMargin) * time.Second,
		Log:           log,
	})

	r.activity = activity.Noop{}
	if config.Broker.URL != "" {
		publisher, err := activity.NewPulsar(activity.PulsarOptions{
			URL:   config.Broker.URL,
			Topic: config.Broker.Topic,
			Log:   log,
		})
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("activity: %w", err)
		}
		r.activity = publisher
	}

	remote := todo.NewRemote(client, config.Storage.Bucket, config.Storage.CacheControl)

	r.ctrl = app.New(app.Options{
		Sessions: r.sessions,
		Records:  remote,
		Objects:  remote,
		Activity: r.activity,
		Log:      log,
	})

	return r, nil
}

// start restores the previous session and begins refreshing tokens.
func (r *runtime) start(ctx context.Context) error {
	if err := r.ctrl.Start(ctx); err != nil {
		return err
	}

	r.sessions.Start()

	if state := r.ctrl.Snapshot(); state.SignedIn() {
		r.log.WithField("user_id", state.Identity.ID).Info("session restored")
	}

	return nil
}

func (r *runtime) Close() {
	if r.ctrl != nil {
		r.ctrl.Close()
	}

	if r.sessions != nil {
		r.sessions.Close()
	}

	if r.activity != nil {
		r.activity.Close()
	}

	r.verifier.Close()
}

func sessionStore(config *core.Config, log logrus.FieldLogger) session.Store {
	if config.Session.Store == "keyring" {
		ring, err := session.OpenKeyring("todobase")
		if err == nil {
			return session.NewKeyringStore(ring)
		}

		log.WithError(err).Warn("no keyring available, keeping the session in a file")
	}

	return session.NewFileStore(config.Session.File)
}

// redirectURL is where confirmation emails send the user back to, the local
// interface unless configured.
func redirectURL(config *core.Config) string {
	if config.Backend.RedirectURL != "" {
		return config.Backend.RedirectURL
	}

	host, port, err := net.SplitHostPort(config.Addr)
	if err != nil {
		return ""
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	return "http://" + net.JoinHostPort(host, port)
}
