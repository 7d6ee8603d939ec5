package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/agent-racer/tcpsess/internal/config"
	"github.com/agent-racer/tcpsess/internal/console"
	"github.com/agent-racer/tcpsess/internal/driver"
	"github.com/agent-racer/tcpsess/internal/observer"
	"github.com/agent-racer/tcpsess/internal/registry"
	"github.com/agent-racer/tcpsess/internal/shell"
)

// connectFlags collects repeated -connect id=addr values.
type connectFlags []config.SessionConfig

func (c *connectFlags) String() string {
	parts := make([]string, len(*c))
	for i, s := range *c {
		parts[i] = fmt.Sprintf("%d=%s", s.ID, s.Addr)
	}
	return strings.Join(parts, ",")
}

func (c *connectFlags) Set(v string) error {
	s, err := parseConnect(v)
	if err != nil {
		return err
	}
	*c = append(*c, s)
	return nil
}

func parseConnect(v string) (config.SessionConfig, error) {
	idText, addr, ok := strings.Cut(v, "=")
	if !ok || addr == "" {
		return config.SessionConfig{}, fmt.Errorf("want id=host:port, got %q", v)
	}
	id, err := strconv.Atoi(idText)
	if err != nil || id < 0 {
		return config.SessionConfig{}, fmt.Errorf("invalid session id %q", idText)
	}
	return config.SessionConfig{ID: id, Name: addr, Addr: addr}, nil
}

func main() {
	configPath := flag.String("config", "tcpsess.yaml", "Path to config file")
	mode := flag.String("mode", "tui", "Front end: tui, line or watch")
	observerOn := flag.Bool("observer", false, "Enable the websocket observer feed")
	watchURL := flag.String("url", "", "Observer feed to follow in watch mode (default from config)")
	token := flag.String("token", "", "Observer auth token for watch mode (default from config)")
	var connects connectFlags
	flag.Var(&connects, "connect", "Open a session at startup as id=host:port (repeatable)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Sessions = mergeSessions(cfg.Sessions, connects)
	if *observerOn {
		cfg.Observer.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "tui", "line":
	case "watch":
		url := *watchURL
		if url == "" {
			url = fmt.Sprintf("ws://%s:%d/ws", cfg.Observer.Host, cfg.Observer.Port)
		}
		tok := *token
		if tok == "" {
			tok = cfg.Observer.AuthToken
		}
		watch(ctx, url, tok)
		return
	default:
		log.Fatalf("Unknown mode %q (want tui, line or watch)", *mode)
	}

	if *mode == "tui" && cfg.Console.LogFile != "" {
		f, err := os.OpenFile(cfg.Console.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	store := registry.NewStore()
	d := driver.New(cfg, store)

	observerAddr := ""
	if cfg.Observer.Enabled {
		broadcaster := observer.NewBroadcaster(store, cfg.Observer.SnapshotInterval, cfg.Observer.MaxConnections)
		defer broadcaster.Stop()
		d.SetNotifier(broadcaster)

		mux := http.NewServeMux()
		observer.NewServer(store, broadcaster, cfg.Observer.AllowedOrigins, cfg.Observer.AuthToken).SetupRoutes(mux)
		srv, errc := observer.ListenAndServe(cfg.Observer.Host, cfg.Observer.Port, mux)
		defer srv.Close()
		go func() {
			if err := <-errc; err != nil {
				log.Printf("observer: server error: %v", err)
			}
		}()
		observerAddr = fmt.Sprintf("%s:%d", cfg.Observer.Host, cfg.Observer.Port)
	}

	for _, s := range cfg.Sessions {
		if err := d.Connect(s.Request()); err != nil {
			log.Printf("Failed to queue session %d: %v", s.ID, err)
		}
	}

	switch *mode {
	case "line":
		err = shell.Interactive(ctx, d, cfg.Console.MaxMessagesPerTick, "")
	default:
		err = console.Run(ctx, d, cfg.Console, observerAddr)
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("Exited with error: %v", err)
		os.Exit(1)
	}
	log.Println("Shutting down...")
}

// watch prints an observer feed until ctx is done.
func watch(ctx context.Context, url, token string) {
	log.Printf("Following %s", url)
	observer.NewClient(url, token).Run(ctx, func(f observer.Feed) {
		fmt.Println(formatFeed(f))
	})
}

func formatFeed(f observer.Feed) string {
	switch f.Type {
	case observer.MsgSnapshot:
		parts := make([]string, len(f.Snapshot.Sessions))
		for i, s := range f.Snapshot.Sessions {
			parts[i] = fmt.Sprintf("%d:%s", s.ID, s.State)
		}
		return "* snapshot " + strings.Join(parts, " ")
	case observer.MsgSession:
		if f.Session.Session == nil {
			return "* session " + f.Session.Event
		}
		s := fmt.Sprintf("* session %d %s", f.Session.Session.ID, f.Session.Event)
		if f.Session.Error != "" {
			s += ": " + f.Session.Error
		}
		return s
	case observer.MsgMessage:
		if f.Message.Text == "" && len(f.Message.Data) > 0 {
			return fmt.Sprintf("[%d] %q", f.Message.ID, f.Message.Data)
		}
		return fmt.Sprintf("[%d] %s", f.Message.ID, f.Message.Text)
	}
	return ""
}

// mergeSessions appends flag sessions to the configured ones. A flag session
// replaces a configured session with the same id.
func mergeSessions(configured []config.SessionConfig, flags connectFlags) []config.SessionConfig {
	out := make([]config.SessionConfig, 0, len(configured)+len(flags))
	replaced := make(map[int]bool)
	for _, f := range flags {
		replaced[f.ID] = true
	}
	for _, s := range configured {
		if !replaced[s.ID] {
			out = append(out, s)
		}
	}
	for _, f := range flags {
		if f.Encoding == "" {
			f.Encoding = config.DefaultEncoding
		}
		if f.LineEnding == "" {
			f.LineEnding = config.DefaultLineEnding
		}
		out = append(out, f)
	}
	return out
}
