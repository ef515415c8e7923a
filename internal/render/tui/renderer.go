// Package tui renders run progress as an interactive terminal display with a
// cancel key.
package tui

import (
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

// Config selects the terminal streams. Nil streams fall back to bubbletea's
// defaults (stdin and stdout).
type Config struct {
	Input  io.Reader
	Output io.Writer
	// DisableInput turns off keyboard handling; the cancel keys then do nothing.
	DisableInput bool
	Width        int
}

// Renderer implements engine.Renderer with a bubbletea program. Each Open
// starts a fresh program; Close stops it and waits for the final frame.
type Renderer struct {
	cfg Config

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	runErr  error
}

var _ engine.Renderer = (*Renderer)(nil)

// New constructs a Renderer.
func New(cfg Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Open starts the program. Pressing esc, q or ctrl+c calls cancel once.
func (r *Renderer) Open(cancel func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return errors.New("tui: renderer already open")
	}

	opts := []tea.ProgramOption{tea.WithoutSignalHandler()}
	switch {
	case r.cfg.DisableInput:
		opts = append(opts, tea.WithInput(nil))
	case r.cfg.Input != nil:
		opts = append(opts, tea.WithInput(r.cfg.Input))
	}
	if r.cfg.Output != nil {
		opts = append(opts, tea.WithOutput(r.cfg.Output))
	}

	p := tea.NewProgram(newModel(cancel, r.cfg.Width), opts...)
	done := make(chan struct{})
	r.program = p
	r.done = done
	r.runErr = nil
	go func() {
		defer close(done)
		if _, err := p.Run(); err != nil {
			r.mu.Lock()
			r.runErr = err
			r.mu.Unlock()
		}
	}()
	return nil
}

// Render hands the snapshot to the program. It blocks until the program
// accepts it, or returns at once if the program has exited.
func (r *Renderer) Render(s engine.Snapshot) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(snapshotMsg(s))
	}
}

// Close draws the final frame, stops the program and restores the terminal.
func (r *Renderer) Close() error {
	r.mu.Lock()
	p, done := r.program, r.done
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Send(quitMsg{})
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.program = nil
	r.done = nil
	if r.runErr != nil {
		return fmt.Errorf("tui: %w", r.runErr)
	}
	return nil
}
