package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/observability"
)

var styles = struct {
	speakers []lipgloss.Style
	text     lipgloss.Style
	muted    lipgloss.Style
	prompt   lipgloss.Style
	header   lipgloss.Style
	status   map[protocol.Status]lipgloss.Style
}{
	speakers: []lipgloss.Style{
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
	},
	text:   lipgloss.NewStyle().PaddingLeft(2),
	muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	header: lipgloss.NewStyle().Bold(true).Underline(true),
	status: map[protocol.Status]lipgloss.Style{
		protocol.StatusConcluded:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		protocol.StatusIncomplete:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		protocol.StatusMaxStepsReached: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	},
}

func printUtterance(w io.Writer, u protocol.Utterance, index int) {
	label := styles.speakers[index%len(styles.speakers)].Render(u.Speaker + ":")
	fmt.Fprintln(w, label)
	fmt.Fprintln(w, styles.text.Render(u.Text))
}

func printStatus(w io.Writer, status protocol.Status, reason string) {
	style, ok := styles.status[status]
	if !ok {
		style = styles.muted
	}
	line := style.Render(string(status))
	if reason != "" {
		line += " " + styles.muted.Render(reason)
	}
	fmt.Fprintln(w, line)
}

// printResult writes a finished run without its setup block. Speakers are
// colored by order of first appearance.
func printResult(w io.Writer, res *negotiation.Result) {
	fmt.Fprintln(w, styles.header.Render("session "+res.SessionID))

	order := make(map[string]int)
	for _, u := range res.Transcript {
		if u.IsSetup() {
			continue
		}
		idx, ok := order[u.Speaker]
		if !ok {
			idx = len(order)
			order[u.Speaker] = idx
		}
		printUtterance(w, u, idx)
	}

	printStatus(w, res.Status, res.Reason)
	fmt.Fprintln(w, styles.muted.Render(fmt.Sprintf("%d generated turns", res.Turns)))
}

// progress reports each finished run as it completes, so parallel runs show
// activity before the transcripts are printed.
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	done  int
	total int
}

func (p *progress) OnEvent(_ context.Context, event observability.Event) {
	if event.Type != negotiation.EventComplete {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	fmt.Fprintln(p.w, styles.muted.Render(fmt.Sprintf("[%d/%d] %v %v after %v turns",
		p.done, p.total, event.Data["session_id"], event.Data["status"], event.Data["turns"])))
}
