// Package tui is the terminal interface of the controller.
package tui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timada-org/todobase/internal/app"
	"github.com/timada-org/todobase/internal/core"
	"github.com/timada-org/todobase/internal/todo"
)

// Controller is the application as seen by the terminal interface.
type Controller interface {
	Snapshot() app.State
	Subscribe(filter string, handler core.Handler) (*core.Subscription, error)
	Register(ctx context.Context, email string, password string) error
	Authenticate(ctx context.Context, email string, password string) error
	Deauthenticate(ctx context.Context)
	SelectFile(file *todo.File) string
	ClearFile()
	Add(ctx context.Context, text string) (*todo.Todo, error)
	Toggle(ctx context.Context, id int64, current bool) error
	DismissNotice()
}

type mode int

const (
	modeList mode = iota
	modeAdd
	modeAttach
)

// changedMsg tells the model the controller state moved on.
type changedMsg struct{}

// doneMsg ends an operation started from a key press.
type doneMsg struct{ err error }

type item struct {
	todo todo.Todo
}

func (i item) Title() string       { return i.todo.Task }
func (i item) Description() string { return "" }
func (i item) FilterValue() string { return i.todo.Task }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	it, _ := listItem.(item)

	box := mutedStyle.Render(boxUnchecked)
	text := it.todo.Task
	if it.todo.IsComplete {
		box = successStyle.Render(boxChecked)
		text = doneStyle.Render(text)
	}

	if it.todo.ImageURL != nil {
		text += " " + accentStyle.Render("[image]")
	}

	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}

	fmt.Fprintf(w, "%s%s %s", prefix, box, text)
}

type Model struct {
	ctx      context.Context
	ctrl     Controller
	state    app.State
	list     list.Model
	email    textinput.Model
	password textinput.Model
	input    textinput.Model
	focus    int
	mode     mode
	status   string
}

func New(ctx context.Context, ctrl Controller) Model {
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.SetStatusBarItemName("todo", "todos")

	addBind := key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	toggleBind := key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	imageBind := key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "image"))
	signOutBind := key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "sign out"))
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{addBind, toggleBind, imageBind, signOutBind}
	}

	email := textinput.New()
	email.Prompt = "Email    "
	email.Placeholder = "you@example.com"
	email.Focus()

	password := textinput.New()
	password.Prompt = "Password "
	password.Placeholder = "min 6 characters"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 200

	for _, in := range []*textinput.Model{&email, &password, &input} {
		in.Cursor.SetMode(cursor.CursorStatic)
	}

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		list:     l,
		email:    email,
		password: password,
		input:    input,
	}
	m.refresh()

	return m
}

func (m *Model) refresh() {
	m.state = m.ctrl.Snapshot()

	items := make([]list.Item, 0, len(m.state.Todos))
	for _, t := range m.state.Todos {
		items = append(items, item{todo: t})
	}
	m.list.SetItems(items)
}

func (m Model) run(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: fn(m.ctx)}
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	case changedMsg, doneMsg:
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.state.Notice != nil {
			switch msg.String() {
			case "enter", "esc", " ":
				m.ctrl.DismissNotice()
				m.refresh()
			}
			return m, nil
		}

		if !m.state.SignedIn() {
			return m.updateAuth(msg)
		}

		switch m.mode {
		case modeAdd, modeAttach:
			return m.updateInput(msg)
		}

		return m.updateList(msg)
	}

	return m, nil
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		m.focus = 1 - m.focus
		if m.focus == 0 {
			m.password.Blur()
			return m, m.email.Focus()
		}
		m.email.Blur()
		return m, m.password.Focus()
	case "enter":
		email, password := strings.TrimSpace(m.email.Value()), m.password.Value()
		m.password.SetValue("")
		return m, m.run(func(ctx context.Context) error {
			return m.ctrl.Authenticate(ctx, email, password)
		})
	case "ctrl+n":
		email, password := strings.TrimSpace(m.email.Value()), m.password.Value()
		m.password.SetValue("")
		return m, m.run(func(ctx context.Context) error {
			return m.ctrl.Register(ctx, email, password)
		})
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}

	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "a":
		if m.state.Busy {
			return m, nil
		}
		m.mode = modeAdd
		m.input.Placeholder = "What needs to be done?"
		m.input.SetValue(m.state.Draft.Task)
		return m, m.input.Focus()
	case "i":
		m.mode = modeAttach
		m.input.Placeholder = "Path of an image"
		m.input.SetValue("")
		return m, m.input.Focus()
	case "x":
		m.ctrl.ClearFile()
		m.refresh()
		return m, nil
	case " ":
		selected, ok := m.list.SelectedItem().(item)
		if !ok {
			return m, nil
		}
		return m, m.run(func(ctx context.Context) error {
			return m.ctrl.Toggle(ctx, selected.todo.ID, selected.todo.IsComplete)
		})
	case "o":
		return m, m.run(func(ctx context.Context) error {
			m.ctrl.Deauthenticate(ctx)
			return nil
		})
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeList
		m.input.Blur()
		return m, nil
	case "enter":
		value := m.input.Value()
		current := m.mode

		m.mode = modeList
		m.input.Blur()
		m.input.SetValue("")

		if current == modeAttach {
			file, err := readFile(strings.TrimSpace(value))
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.ctrl.SelectFile(file)
			m.refresh()
			return m, nil
		}

		return m, m.run(func(ctx context.Context) error {
			_, err := m.ctrl.Add(ctx, value)
			return err
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func readFile(path string) (*todo.File, error) {
	if path == "" {
		return nil, fmt.Errorf("no file given")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	return &todo.File{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func (m Model) View() string {
	var b strings.Builder

	if notice := m.state.Notice; notice != nil {
		style := accentStyle
		if notice.Kind == app.NoticeError {
			style = errorStyle
		}
		b.WriteString(style.Render(notice.Message))
		b.WriteString("\n" + helpStyle.Render("enter dismiss") + "\n\n")
	}

	if !m.state.SignedIn() {
		b.WriteString(titleStyle.Render("Supabase Todos Test") + "\n\n")
		b.WriteString(m.email.View() + "\n")
		b.WriteString(m.password.View() + "\n\n")
		b.WriteString(helpStyle.Render("enter sign in • ctrl+n sign up • tab switch • esc quit"))
		return panelStyle.Render(b.String())
	}

	done, pending := stats(m.state.Todos)
	b.WriteString(fmt.Sprintf("%s %s   %s %d  %s %d\n\n",
		titleStyle.Render("My Todos"),
		mutedStyle.Render(m.state.Identity.Email),
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), pending,
	))

	if len(m.state.Todos) == 0 {
		b.WriteString(mutedStyle.Render("No todos yet! Press a to add one.") + "\n")
	} else {
		b.WriteString(m.list.View() + "\n")
	}

	if m.state.Draft.HasFile() {
		b.WriteString("\n" + accentStyle.Render("image: "+m.state.Draft.FileName) + helpStyle.Render("  (x remove)") + "\n")
	}

	if m.state.Busy {
		b.WriteString("\n" + pendingStyle.Render("Adding...") + "\n")
	}

	if m.status != "" {
		b.WriteString("\n" + errorStyle.Render(m.status) + "\n")
	}

	if m.mode != modeList {
		title := "Add todo"
		if m.mode == modeAttach {
			title = "Attach image"
		}
		b.WriteString("\n" + panelStyle.Render(title+"\n"+m.input.View()))
	}

	return panelStyle.Render(b.String())
}

func stats(todos []todo.Todo) (done, pending int) {
	for _, t := range todos {
		if t.IsComplete {
			done++
		} else {
			pending++
		}
	}
	return
}
