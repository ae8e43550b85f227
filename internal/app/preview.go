package app

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/timada-org/todobase/internal/todo"
)

// Previews holds the files selected for the draft so they can be shown
// before they are uploaded.
type Previews struct {
	mux   sync.RWMutex
	files map[string]*todo.File
}

func NewPreviews() *Previews {
	return &Previews{files: make(map[string]*todo.File)}
}

func (p *Previews) Register(file *todo.File) string {
	id := gonanoid.Must()

	p.mux.Lock()
	p.files[id] = file
	p.mux.Unlock()

	return id
}

func (p *Previews) Get(id string) (*todo.File, bool) {
	p.mux.RLock()
	defer p.mux.RUnlock()

	file, ok := p.files[id]
	return file, ok
}

func (p *Previews) Release(id string) {
	p.mux.Lock()
	delete(p.files, id)
	p.mux.Unlock()
}

func (p *Previews) ReleaseAll() {
	p.mux.Lock()
	p.files = make(map[string]*todo.File)
	p.mux.Unlock()
}

func (p *Previews) Len() int {
	p.mux.RLock()
	defer p.mux.RUnlock()

	return len(p.files)
}
