package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Op int

const (
	OpConnect Op = iota
	OpSend
	OpClose
	OpReconnect
	OpList
	OpHelp
	OpQuit
)

var ErrEmpty = errors.New("shell: empty command")

// Command is one parsed input line.
type Command struct {
	Op   Op
	ID   int
	Addr string
	Name string
	Text string
}

const usage = `commands:
  connect <id> <addr> [name]   open a session
  send <id> <text...>          send text plus the session's line ending
  close <id>                   close a session
  reconnect <id>               repeat the last connect for id
  list                         show every session
  help                         show this text
  quit                         close everything and exit
`

// commandNames feeds the completer.
var commandNames = []string{"connect", "send", "close", "reconnect", "list", "help", "quit"}

// Parse turns a line into a Command. Text after "send <id> " is kept
// verbatim, including inner spacing.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmpty
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " ")

	switch name {
	case "connect":
		f := strings.Fields(rest)
		if len(f) != 2 && len(f) != 3 {
			return Command{}, fmt.Errorf("usage: connect <id> <addr> [name]")
		}
		id, err := parseID(f[0])
		if err != nil {
			return Command{}, err
		}
		cmd := Command{Op: OpConnect, ID: id, Addr: f[1]}
		if len(f) == 3 {
			cmd.Name = f[2]
		}
		return cmd, nil

	case "send":
		idText, text, ok := strings.Cut(rest, " ")
		if !ok || idText == "" {
			return Command{}, fmt.Errorf("usage: send <id> <text...>")
		}
		id, err := parseID(idText)
		if err != nil {
			return Command{}, err
		}
		return Command{Op: OpSend, ID: id, Text: text}, nil

	case "close", "reconnect":
		f := strings.Fields(rest)
		if len(f) != 1 {
			return Command{}, fmt.Errorf("usage: %s <id>", name)
		}
		id, err := parseID(f[0])
		if err != nil {
			return Command{}, err
		}
		op := OpClose
		if name == "reconnect" {
			op = OpReconnect
		}
		return Command{Op: op, ID: id}, nil

	case "list":
		return Command{Op: OpList}, nil
	case "help":
		return Command{Op: OpHelp}, nil
	case "quit", "exit":
		return Command{Op: OpQuit}, nil
	}
	return Command{}, fmt.Errorf("unknown command %q (try help)", name)
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid session id %q", s)
	}
	return id, nil
}
