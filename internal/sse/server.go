// Package sse streams topic events to browsers as server-sent events.
package sse

import (
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/pkg/topic"
)

type Options struct {
	// Heartbeat is the interval of the keep-alive comments, none when zero.
	Heartbeat time.Duration
	Log       logrus.FieldLogger
}

type Server struct {
	mux                 sync.RWMutex
	NewSessionHandler   func(id string, session *Session)
	CloseSessionHandler func(id string, session *Session)
	sessions            map[string]*Session
	heartbeat           time.Duration
	log                 logrus.FieldLogger
}

func New(options Options) *Server {
	if options.Log == nil {
		options.Log = logrus.StandardLogger()
	}

	return &Server{
		sessions:  make(map[string]*Session),
		heartbeat: options.Heartbeat,
		log:       options.Log.WithField("component", "sse"),
	}
}

// HandleFunc opens a stream subscribed to the "filter" query parameter,
// "#" when absent. The first event carries the session id.
func (s *Server) HandleFunc() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		value := r.URL.Query().Get("filter")
		if value == "" {
			value = "#"
		}

		filter, err := topic.NewFilter(value)
		if err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		id, err := gonanoid.New()
		if err != nil {
			http.Error(w, "Internal server error.", http.StatusInternalServerError)
			return
		}

		session := newSession(id, s.log)
		session.Subscribe(filter)

		s.mux.Lock()
		s.sessions[id] = session
		s.mux.Unlock()

		if s.NewSessionHandler != nil {
			s.NewSessionHandler(id, session)
		}

		session.Send(&Event{
			Topic: SYSSessionTopic,
			Name:  SYSSessionCreated,
			Data:  id,
		})

		session.listen(w, r, s.heartbeat)

		s.mux.Lock()
		delete(s.sessions, id)
		s.mux.Unlock()

		if s.CloseSessionHandler != nil {
			s.CloseSessionHandler(id, session)
		}
	}
}

func (s *Server) Get(id string) (*Session, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	session, ok := s.sessions[id]

	return session, ok
}

func (s *Server) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()

	return len(s.sessions)
}

// Publish sends event to every session with a filter matching its topic.
func (s *Server) Publish(event *Event) {
	name, err := topic.NewName(event.Topic)
	if err != nil {
		s.log.WithError(err).Error("invalid event topic")
		return
	}

	s.mux.RLock()
	matched := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Match(name) {
			matched = append(matched, session)
		}
	}
	s.mux.RUnlock()

	for _, session := range matched {
		session.Send(event)
	}
}
