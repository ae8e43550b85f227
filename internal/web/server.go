// Package web serves the browser interface of the controller.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/internal/app"
	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/sse"
	"github.com/timada-org/todobase/internal/todo"
)

// Controller is the application as seen by the HTTP handlers.
type Controller interface {
	Snapshot() app.State
	Subscribe(filter string, handler core.Handler) (*core.Subscription, error)
	Register(ctx context.Context, email string, password string) error
	Authenticate(ctx context.Context, email string, password string) error
	Deauthenticate(ctx context.Context)
	SelectFile(file *todo.File) string
	ClearFile()
	Preview(id string) (*todo.File, bool)
	Add(ctx context.Context, text string) (*todo.Todo, error)
	Toggle(ctx context.Context, id int64, current bool) error
	DismissNotice()
}

type Options struct {
	Controller     Controller
	Addr           string
	AllowedOrigins []string
	Heartbeat      time.Duration
	Log            logrus.FieldLogger
}

type Server struct {
	ctrl         Controller
	addr         string
	events       *sse.Server
	subscription *core.Subscription
	handler      http.Handler
	log          logrus.FieldLogger
}

func New(options Options) (*Server, error) {
	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	if options.Heartbeat == 0 {
		options.Heartbeat = 15 * time.Second
	}

	log := options.Log.WithField("component", "web")

	s := &Server{
		ctrl:   options.Controller,
		addr:   options.Addr,
		events: sse.New(sse.Options{Heartbeat: options.Heartbeat, Log: options.Log}),
		log:    log,
	}

	subscription, err := s.ctrl.Subscribe("#", func(event *core.Event) {
		s.events.Publish(&sse.Event{
			Topic: event.Topic.Value,
			Name:  event.Name,
			Data:  event.Data,
		})
	})
	if err != nil {
		return nil, err
	}

	s.subscription = subscription

	s.events.NewSessionHandler = func(id string, session *sse.Session) {
		log.WithField("session_id", id).Debug("event stream opened")
	}
	s.events.CloseSessionHandler = func(id string, session *sse.Session) {
		log.WithField("session_id", id).Debug("event stream closed")
	}

	router := httprouter.New()
	router.GET("/", s.index())
	router.GET("/state", s.state())
	router.GET("/health", s.health())
	router.GET("/events", s.events.HandleFunc())
	router.PUT("/sub/*filter", s.subscribe())
	router.PUT("/unsub/*filter", s.unsubscribe())
	router.POST("/auth/signup", s.signUp())
	router.POST("/auth/signin", s.signIn())
	router.POST("/auth/signout", s.signOut())
	router.POST("/draft/file", s.selectFile())
	router.POST("/draft/file/clear", s.clearFile())
	router.GET("/preview/:id", s.preview())
	router.POST("/todos", s.addTodo())
	router.POST("/todos/:id/toggle", s.toggleTodo())
	router.POST("/notice/dismiss", s.dismissNotice())

	s.handler = checkOrigin(options.AllowedOrigins, log, router)

	// without configured origins the browser's same-origin policy applies
	if len(options.AllowedOrigins) > 0 {
		s.handler = cors.Handler(cors.Options{
			AllowedOrigins: options.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT"},
			AllowedHeaders: []string{"Accept", "Content-Type", SessionHeader},
			MaxAge:         300,
		})(s.handler)
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done or the process is interrupted, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: time.Minute,
		BaseContext: func(net.Listener) context.Context { return base },
	}

	// event streams end with their request context
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)

	go func() {
		s.log.WithField("addr", s.addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-ctx.Done():
		s.log.Info("context cancelled, shutting down")
	case sig := <-quit:
		s.log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("forced shutdown")
		return err
	}

	s.log.Info("server exited")

	return nil
}

func (s *Server) Close() {
	if s.subscription != nil {
		s.subscription.Unsubscribe()
	}
}
