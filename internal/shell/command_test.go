package shell

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{line: "connect 1 irc.example.net:6667", want: Command{Op: OpConnect, ID: 1, Addr: "irc.example.net:6667"}},
		{line: "  connect 2 127.0.0.1:7000 local ", want: Command{Op: OpConnect, ID: 2, Addr: "127.0.0.1:7000", Name: "local"}},
		{line: "connect 1", wantErr: true},
		{line: "connect x host:1", wantErr: true},
		{line: "connect -1 host:1", wantErr: true},
		{line: "send 3 PRIVMSG #go :hi  there", want: Command{Op: OpSend, ID: 3, Text: "PRIVMSG #go :hi  there"}},
		{line: "send 3  ", wantErr: true},
		{line: "send 3", wantErr: true},
		{line: "send abc hi", wantErr: true},
		{line: "close 4", want: Command{Op: OpClose, ID: 4}},
		{line: "close", wantErr: true},
		{line: "close 4 5", wantErr: true},
		{line: "reconnect 9", want: Command{Op: OpReconnect, ID: 9}},
		{line: "list", want: Command{Op: OpList}},
		{line: "help", want: Command{Op: OpHelp}},
		{line: "quit", want: Command{Op: OpQuit}},
		{line: "exit", want: Command{Op: OpQuit}},
		{line: "frobnicate", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %+v, want error", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, line := range []string{"", "   ", "\t"} {
		if _, err := Parse(line); !errors.Is(err, ErrEmpty) {
			t.Errorf("Parse(%q) error = %v, want ErrEmpty", line, err)
		}
	}
}
