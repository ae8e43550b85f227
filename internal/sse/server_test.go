package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timada-org/todobase/internal/sse"
	"github.com/timada-org/todobase/pkg/topic"
)

type stream struct {
	events chan sse.Event
	cancel context.CancelFunc
}

func open(t *testing.T, url string) *stream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &stream{events: make(chan sse.Event, 16), cancel: cancel}

	go func() {
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var event sse.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err == nil {
				s.events <- event
			}
		}
	}()

	t.Cleanup(cancel)

	return s
}

func (s *stream) next(t *testing.T) sse.Event {
	t.Helper()

	select {
	case event := <-s.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	return sse.Event{}
}

func newServer(t *testing.T) (*sse.Server, *httptest.Server) {
	t.Helper()

	server := sse.New(sse.Options{Heartbeat: 10 * time.Millisecond})

	router := httprouter.New()
	router.GET("/events", server.HandleFunc())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return server, ts
}

func TestStream(t *testing.T) {
	server, ts := newServer(t)

	closed := make(chan string, 1)
	server.CloseSessionHandler = func(id string, session *sse.Session) {
		closed <- id
	}

	s := open(t, ts.URL+"/events?filter=todos")

	created := s.next(t)
	assert.Equal(t, sse.SYSSessionTopic, created.Topic)
	assert.Equal(t, sse.SYSSessionCreated, created.Name)

	id, ok := created.Data.(string)
	require.True(t, ok)

	session, ok := server.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, session.ID())

	server.Publish(&sse.Event{Topic: "session", Name: "SIGNED_IN"})
	server.Publish(&sse.Event{Topic: "todos", Name: "Added", Data: map[string]any{"id": 1}})

	added := s.next(t)
	assert.Equal(t, "todos", added.Topic)
	assert.Equal(t, "Added", added.Name)

	session.Subscribe(topic.MustFilter("session"))
	server.Publish(&sse.Event{Topic: "session", Name: "SIGNED_OUT"})
	assert.Equal(t, "SIGNED_OUT", s.next(t).Name)

	session.Unsubscribe(topic.MustFilter("todos"))
	server.Publish(&sse.Event{Topic: "todos", Name: "Cleared"})
	server.Publish(&sse.Event{Topic: "session", Name: "SIGNED_IN"})
	assert.Equal(t, "SIGNED_IN", s.next(t).Name)

	s.cancel()

	select {
	case closedID := <-closed:
		assert.Equal(t, id, closedID)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not closed")
	}

	assert.Equal(t, 0, server.Len())
}

func TestStreamRejectsInvalidFilter(t *testing.T) {
	_, ts := newServer(t)

	resp, err := http.Get(ts.URL + "/events?filter=a/%23/b")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPublishAfterClose(t *testing.T) {
	server, ts := newServer(t)

	s := open(t, ts.URL+"/events")
	id := s.next(t).Data.(string)

	session, ok := server.Get(id)
	require.True(t, ok)

	s.cancel()
	require.Eventually(t, func() bool { return server.Len() == 0 }, 2*time.Second, 5*time.Millisecond)

	session.Send(&sse.Event{Topic: "todos", Name: "Added"})
}
