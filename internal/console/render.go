package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/toodo84/ai-pronunciation-app/internal/transcript"
)

// Speaker labels
const (
	labelUser  = "你"
	labelCoach = "教練"
)

// Renderer prints transcript events and status text. It only observes the
// session and never changes it.
type Renderer struct {
	w      io.Writer
	status string
	mu     sync.Mutex
}

// NewRenderer creates a renderer writing to w
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Handle is a transcript.Session subscriber
func (r *Renderer) Handle(ev transcript.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case transcript.TurnAppended:
		r.printTurn(ev.Turn)
	case transcript.TurnDecorated:
		if n := len(ev.Turn.Options); n > 0 {
			r.printOptions(ev.Turn.Options[n-1])
		}
	case transcript.TurnUpdated:
		// Disabled controls are simply no longer offered
	}
}

// Status shows a status line. Empty text clears it without output.
func (r *Renderer) Status(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if text == r.status {
		return
	}
	r.status = text
	if text != "" {
		fmt.Fprintf(r.w, "  … %s\n", text)
	}
}

// Message prints a line that is not part of the transcript
func (r *Renderer) Message(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "  ! %s\n", text)
}

func (r *Renderer) printTurn(t transcript.Turn) {
	label := labelCoach
	if t.Direction == transcript.Sent {
		label = labelUser
	}

	lines := strings.Split(t.Text, "\n")
	fmt.Fprintf(r.w, "[%s] %s\n", label, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(r.w, "    %s\n", line)
	}
}

func (r *Renderer) printOptions(set transcript.OptionSet) {
	if set.Disabled {
		return
	}

	if set.Kind == transcript.OptionsCorrection {
		fmt.Fprintf(r.w, "  ✎ %s（直接輸入後按 Enter）\n", set.Placeholder)
		return
	}

	parts := make([]string, len(set.Options))
	for i, o := range set.Options {
		parts[i] = fmt.Sprintf("%d) %s", i+1, o.Label)
	}
	fmt.Fprintf(r.w, "  %s\n", strings.Join(parts, "  "))
}
