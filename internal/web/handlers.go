package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/timada-org/todobase/internal/sse"
	"github.com/timada-org/todobase/internal/todo"
	"github.com/timada-org/todobase/pkg/backend"
	"github.com/timada-org/todobase/pkg/topic"
)

const (
	SessionHeader = "X-Session-ID"
	maxUpload     = 10 << 20
)

type result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("failed to write response")
	}
}

// done ends a form post: back to the page for browsers, a result for
// scripts.
func (s *Server) done(w http.ResponseWriter, r *http.Request, err error) {
	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, result{Success: false, Error: backend.Message(err)})
		return
	}

	s.writeJSON(w, http.StatusOK, result{Success: true})
}

func (s *Server) index() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if err := render(w, s.ctrl.Snapshot()); err != nil {
			s.log.WithError(err).Error("failed to render page")
		}
	}
}

func (s *Server) state() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	}
}

func (s *Server) health() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.log.WithError(err).Error("failed to write response")
		}
	}
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, p httprouter.Params) (*sse.Session, *topic.TopicFilter, bool) {
	session, ok := s.events.Get(r.Header.Get(SessionHeader))
	if !ok {
		http.Error(w, "Bad request.", http.StatusBadRequest)
		return nil, nil, false
	}

	filter, err := topic.NewFilter(strings.TrimPrefix(p.ByName("filter"), "/"))
	if err != nil {
		http.Error(w, "Bad request.", http.StatusBadRequest)
		return nil, nil, false
	}

	return session, filter, true
}

func (s *Server) subscribe() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		session, filter, ok := s.stream(w, r, p)
		if !ok {
			return
		}

		session.Subscribe(filter)
		s.writeJSON(w, http.StatusOK, result{Success: true})
	}
}

func (s *Server) unsubscribe() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		session, filter, ok := s.stream(w, r, p)
		if !ok {
			return
		}

		session.Unsubscribe(filter)
		s.writeJSON(w, http.StatusOK, result{Success: true})
	}
}

func (s *Server) signUp() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		err := s.ctrl.Register(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
		s.done(w, r, err)
	}
}

func (s *Server) signIn() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		err := s.ctrl.Authenticate(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
		s.done(w, r, err)
	}
}

func (s *Server) signOut() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.ctrl.Deauthenticate(r.Context())
		s.done(w, r, nil)
	}
}

// formFile reads the optional image part of a multipart post.
func formFile(r *http.Request) (*todo.File, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, nil
	}

	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return nil, err
	}

	part, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer part.Close()

	return readFile(part, header)
}

func readFile(part multipart.File, header *multipart.FileHeader) (*todo.File, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxUpload+1))
	if err != nil {
		return nil, err
	}

	if len(data) > maxUpload {
		return nil, fmt.Errorf("image is larger than %d bytes", maxUpload)
	}

	if len(data) == 0 {
		return nil, nil
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return &todo.File{Name: header.Filename, ContentType: contentType, Data: data}, nil
}

func (s *Server) selectFile() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		file, err := formFile(r)
		if err != nil {
			s.log.WithError(err).Warn("invalid upload")
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		if file != nil {
			s.ctrl.SelectFile(file)
		}

		s.done(w, r, nil)
	}
}

func (s *Server) clearFile() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.ctrl.ClearFile()
		s.done(w, r, nil)
	}
}

func (s *Server) preview() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		file, ok := s.ctrl.Preview(p.ByName("id"))
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", file.ContentType)
		w.Header().Set("Cache-Control", "no-store")

		if _, err := w.Write(file.Data); err != nil {
			s.log.WithError(err).Error("failed to write preview")
		}
	}
}

func (s *Server) addTodo() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		file, err := formFile(r)
		if err != nil {
			s.log.WithError(err).Warn("invalid upload")
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		// a busy add keeps the draft it was given
		if file != nil && !s.ctrl.Snapshot().Busy {
			s.ctrl.SelectFile(file)
		}

		_, err = s.ctrl.Add(r.Context(), r.FormValue("task"))
		s.done(w, r, err)
	}
}

func (s *Server) toggleTodo() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		id, err := strconv.ParseInt(p.ByName("id"), 10, 64)
		if err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		current, err := strconv.ParseBool(r.PostFormValue("is_complete"))
		if err != nil {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}

		s.done(w, r, s.ctrl.Toggle(r.Context(), id, current))
	}
}

func (s *Server) dismissNotice() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.ctrl.DismissNotice()
		s.done(w, r, nil)
	}
}
