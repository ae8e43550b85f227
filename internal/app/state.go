package app

import (
	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/pkg/backend"
)

// Topics of the events published by the controller.
const (
	SessionTopic = "session"
	TodosTopic   = "todos"
	DraftTopic   = "draft"
	NoticeTopic  = "notice"
)

const (
	Restored = "Restored"
	Selected = "Selected"
	Reset    = "Reset"
	Alert    = "Alert"
	Dismiss  = "Dismissed"
)

const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func identityOf(user *backend.User) *Identity {
	if user == nil {
		return nil
	}

	return &Identity{ID: user.ID, Email: user.Email}
}

// Draft is the input of the next add. PreviewID is set while a file is
// selected.
type Draft struct {
	Task        string `json:"task"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	PreviewID   string `json:"preview_id,omitempty"`
}

func (d Draft) HasFile() bool {
	return d.PreviewID != ""
}

// Notice is a message the user has to acknowledge.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// State is an immutable snapshot of the application.
type State struct {
	Identity *Identity   `json:"identity"`
	Todos    []todo.Todo `json:"todos"`
	Draft    Draft       `json:"draft"`
	Busy     bool        `json:"busy"`
	Notice   *Notice     `json:"notice"`
}

func (s State) SignedIn() bool {
	return s.Identity != nil
}
