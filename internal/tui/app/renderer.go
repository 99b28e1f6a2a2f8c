package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/humanophone/humanophone/internal/protocol"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Renderer forwards client callbacks into a running program. It implements
// client.Renderer; Connected and Retrying match the client's OnConnect and
// Supervisor.OnRetry hooks.
type Renderer struct {
	program Sender
}

func NewRenderer(p Sender) *Renderer {
	return &Renderer{program: p}
}

func (r *Renderer) Render(ev protocol.Message) {
	r.program.Send(EventMsg{Event: ev})
}

func (r *Renderer) Connected() {
	r.program.Send(ConnectedMsg{})
}

func (r *Renderer) Retrying(attempt int, err error, delay time.Duration) {
	r.program.Send(RetryMsg{Attempt: attempt, Err: err, Delay: delay})
}
