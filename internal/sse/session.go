package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/timada-org/todobase/pkg/topic"
)

const bufferSize = 32

// Session is one open event stream and the topic filters it listens to.
type Session struct {
	id       string
	mux      sync.RWMutex
	filters  map[string]*topic.TopicFilter
	messages chan []byte
	done     chan struct{}
	log      logrus.FieldLogger
}

func newSession(id string, log logrus.FieldLogger) *Session {
	return &Session{
		id:       id,
		filters:  make(map[string]*topic.TopicFilter),
		messages: make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		log:      log.WithField("session_id", id),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Subscribe(filter *topic.TopicFilter) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.filters[filter.Value] = filter
}

func (s *Session) Unsubscribe(filter *topic.TopicFilter) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.filters, filter.Value)
}

func (s *Session) Match(name *topic.TopicName) bool {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for _, filter := range s.filters {
		if filter.Match(name) {
			return true
		}
	}

	return false
}

// Send queues e for the stream. Events are dropped once the stream is closed
// or when the client does not keep up.
func (s *Session) Send(e *Event) {
	message, err := json.Marshal(e)
	if err != nil {
		s.log.WithError(err).Error("failed to encode event")
		return
	}

	select {
	case <-s.done:
	case s.messages <- message:
	default:
		s.log.WithField("topic", e.Topic).Warn("event stream is full, dropping event")
	}
}

func (s *Session) listen(w http.ResponseWriter, r *http.Request, heartbeat time.Duration) {
	defer close(s.done)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var ping <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case message := <-s.messages:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", message); err != nil {
				return
			}
			flusher.Flush()
		case <-ping:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
