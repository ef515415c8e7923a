// Package text renders run progress as plain lines for logs, pipes and CI
// output where an interactive display is not available.
package text

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

// Renderer writes one line per frame:
//
//	[ 45%] Title: action (9 / 20) Approx. 30 seconds remaining.
//
// An empty action keeps the previous one on the line.
type Renderer struct {
	mu         sync.Mutex
	w          io.Writer
	lastAction string
	frames     int
	err        error
}

var _ engine.Renderer = (*Renderer)(nil)

// New constructs a Renderer writing to w.
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Open resets per-run state. Plain output has no cancel affordance; callers
// cancel through the context passed to Start.
func (r *Renderer) Open(func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAction = ""
	r.frames = 0
	r.err = nil
	return nil
}

// Render writes the frame. The first write error is kept for Close.
func (r *Renderer) Render(s engine.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Action != "" {
		r.lastAction = s.Action
	}
	r.frames++
	if r.err != nil {
		return
	}
	_, r.err = io.WriteString(r.w, r.line(s))
}

// Close reports the first write error of the run, if any.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return fmt.Errorf("write progress line: %w", r.err)
	}
	return nil
}

func (r *Renderer) line(s engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%3d%%]", s.Scaled*100/engine.ScaleMax)
	if s.Title != "" {
		b.WriteString(" ")
		b.WriteString(s.Title)
		if r.lastAction != "" {
			b.WriteString(":")
		}
	}
	if r.lastAction != "" {
		b.WriteString(" ")
		b.WriteString(r.lastAction)
	}
	if s.Counts != "" {
		fmt.Fprintf(&b, " (%s)", s.Counts)
	}
	if s.ETA != "" {
		b.WriteString(" ")
		b.WriteString(s.ETA)
	}
	b.WriteByte('\n')
	return b.String()
}
