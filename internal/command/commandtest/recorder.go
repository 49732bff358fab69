// Package commandtest provides a recording command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/cochaviz/dinghy/internal/command"
	"github.com/cochaviz/dinghy/internal/errdefs"
)

// Reply is the canned result for a matched command.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Recorder records every command it is asked to run and answers from Replies.
// Keys in Replies are matched as prefixes of the space-joined argv; the
// longest matching key wins. Unmatched commands succeed with no output.
type Recorder struct {
	Replies map[string]Reply

	mu    sync.Mutex
	calls []command.Command
}

var _ command.Runner = (*Recorder)(nil)

func (r *Recorder) Run(ctx context.Context, cmd command.Command) error {
	out, err := r.Output(ctx, cmd)
	if cmd.Stdout != nil && len(out) > 0 {
		_, _ = cmd.Stdout.Write(out)
	}
	if reply, ok := r.match(cmd.String()); ok && cmd.Stderr != nil && reply.Stderr != "" {
		_, _ = cmd.Stderr.Write([]byte(reply.Stderr))
	}
	return err
}

func (r *Recorder) Output(_ context.Context, cmd command.Command) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	reply, ok := r.match(cmd.String())
	if !ok {
		return nil, nil
	}
	if reply.ExitCode != 0 {
		return []byte(reply.Stdout), &errdefs.TransportError{Command: cmd.Argv(), ExitCode: reply.ExitCode}
	}
	return []byte(reply.Stdout), nil
}

func (r *Recorder) match(line string) (Reply, bool) {
	best := -1
	var found Reply
	for key, reply := range r.Replies {
		if strings.HasPrefix(line, key) && len(key) > best {
			best = len(key)
			found = reply
		}
	}
	return found, best >= 0
}

// Calls returns the recorded commands in order.
func (r *Recorder) Calls() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.calls...)
}

// Lines returns the recorded commands rendered as space-joined strings.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

// Count returns how many recorded commands start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
