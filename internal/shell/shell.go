// Package shell is a line-oriented front end. Input is read on its own
// goroutine and handed to the goroutine that drives the session manager.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"code.hybscloud.com/iox"
	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/network"
	"github.com/chzyer/readline"
)

const shutdownTimeout = 3 * time.Second

type Shell struct {
	d           *driver.Driver
	out         io.Writer
	maxMessages int
}

func New(d *driver.Driver, out io.Writer, maxMessages int) *Shell {
	if maxMessages <= 0 {
		maxMessages = 64
	}
	return &Shell{d: d, out: out, maxMessages: maxMessages}
}

// Interactive runs a readline prompt until quit, EOF or ctx is done.
func Interactive(ctx context.Context, d *driver.Driver, maxMessages int, historyFile string) error {
	items := make([]readline.PrefixCompleterInterface, len(commandNames))
	for i, name := range commandNames {
		items[i] = readline.PcItem(name)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tcpsess> ",
		HistoryFile:     historyFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	return New(d, rl.Stdout(), maxMessages).Run(ctx, lines)
}

// Run drives the session manager on the calling goroutine, executing each
// line received from lines. It returns when lines is closed, a quit command
// arrives or ctx is done; every session is closed on the way out.
func (s *Shell) Run(ctx context.Context, lines <-chan string) error {
	defer s.shutdown()

	var bo iox.Backoff
	for {
		progress := false
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			progress = true
			if quit := s.exec(line); quit {
				return nil
			}
		default:
		}

		if s.print(s.d.Step(s.maxMessages)) {
			progress = true
		}
		if progress {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
}

func (s *Shell) exec(line string) (quit bool) {
	cmd, err := Parse(line)
	if errors.Is(err, ErrEmpty) {
		return false
	}
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}

	switch cmd.Op {
	case OpConnect:
		name := cmd.Name
		if name == "" {
			name = cmd.Addr
		}
		err = s.d.Connect(network.ConnectRequest{ID: cmd.ID, Name: name, Addr: cmd.Addr})
	case OpSend:
		err = s.d.SendLine(cmd.ID, cmd.Text)
	case OpClose:
		err = s.d.Close(cmd.ID)
	case OpReconnect:
		err = s.d.Reconnect(cmd.ID)
	case OpList:
		s.list()
	case OpHelp:
		fmt.Fprint(s.out, usage)
	case OpQuit:
		return true
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

// print writes updates and reports whether there were any.
func (s *Shell) print(updates []driver.Update) bool {
	for _, u := range updates {
		switch u.Kind {
		case driver.UpdateMessage:
			fmt.Fprintf(s.out, "[%d] %s\n", u.ID, u.Data)
		case driver.UpdateStarted:
			fmt.Fprintf(s.out, "* session %d connected to %s\n", u.ID, u.Info.Addr)
		case driver.UpdateEnded:
			if u.Err != nil {
				fmt.Fprintf(s.out, "* session %d ended: %v\n", u.ID, u.Err)
			} else {
				fmt.Fprintf(s.out, "* session %d ended\n", u.ID)
			}
		case driver.UpdateFailed:
			fmt.Fprintf(s.out, "* session %d failed: %v\n", u.ID, u.Err)
		}
	}
	return len(updates) > 0
}

func (s *Shell) list() {
	sessions := s.d.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(s.out, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDR\tSTATE\tIN\tOUT")
	for _, info := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n", info.ID, info.Name, info.Addr, info.State, info.MessagesIn, info.BytesOut)
	}
	tw.Flush()
}

func (s *Shell) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.print(s.d.Shutdown(ctx))
}
