// Package activity announces todo changes to other services through a
// message broker.
package activity

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/timada-org/todobase/pkg/topic"
)

const (
	Created = "Created"
	Updated = "Updated"
)

type Event struct {
	UserID string           `json:"user_id"`
	Topic  *topic.TopicName `json:"topic"`
	Name   string           `json:"name"`
	Data   any              `json:"data"`
}

// TodoEvent builds the event for todo id, published under todos/<id>.
func TodoEvent(userID string, id int64, name string, data any) (*Event, error) {
	t, err := topic.NewName("todos/" + strconv.FormatInt(id, 10))
	if err != nil {
		return nil, err
	}

	return &Event{UserID: userID, Topic: t, Name: name, Data: data}, nil
}

func (e *Event) payload() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close()
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event *Event) error {
	return nil
}

func (Noop) Close() {}
