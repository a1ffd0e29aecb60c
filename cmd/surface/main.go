package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessoncast/lessoncast/internal/applog"
	"github.com/lessoncast/lessoncast/internal/client"
	"github.com/lessoncast/lessoncast/internal/config"
	"github.com/lessoncast/lessoncast/internal/displayurl"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/lessoncast/lessoncast/internal/surface"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/lessoncast/lessoncast/internal/tui/surfaceapp"
	"github.com/op/go-logging"
)

const (
	pingInterval   = 20 * time.Second
	resolveTimeout = 10 * time.Second
	redialBackoff  = 2 * time.Second
)

var log = logging.MustGetLogger(applog.Module)

func main() {
	configPath := flag.String("config", "", "Path to a YAML client config")
	server := flag.String("server", "", "Relay server URL; defaults to the display link's host")
	receiver := flag.Bool("receiver", false, "Register as a native display and wait to be routed")
	name := flag.String("name", "", "Display name reported to presenters")
	logFile := flag.String("log-file", "", "Write logs to this file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [display-url]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*configPath, *server, *receiver, *name, *logFile, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, server string, receiver bool, name, logFile, link string) error {
	if receiver && link != "" {
		return errors.New("a receiver is routed by presenters and takes no display url")
	}
	if name == "" {
		host, _ := os.Hostname()
		name = host
	}

	var params displayurl.Params
	overrides := map[string]interface{}{}
	if link != "" {
		p, err := displayurl.Parse(link)
		if err != nil {
			return err
		}
		params = p
		if server == "" {
			if base, err := displayurl.Base(link); err == nil {
				server = base
			}
		}
	}
	if server != "" {
		overrides["server-url"] = server
	}
	if logFile != "" {
		overrides["log-file"] = logFile
	}

	cfg, err := config.LoadClient(configPath, overrides)
	if err != nil {
		return err
	}
	w, err := applog.OpenFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer w.Close()
	if err := applog.Init(cfg.LogLevel, w); err != nil {
		return err
	}

	h := client.NewHTTPClient(cfg.ServerURL, cfg.Token)
	sessions := client.NewSessions(h)
	hub := client.NewHub(h)

	var prog *tea.Program
	s := surface.New(client.NewLessons(h), surface.Options{
		Name:           name,
		StaleThreshold: cfg.StaleThreshold,
		Receiver:       receiver,
		OnChange: func(v surface.View) {
			if prog != nil {
				prog.Send(surfaceapp.ViewMsg(v))
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prog = tea.NewProgram(surfaceapp.New(s.View()), tea.WithAltScreen())
	done := make(chan struct{})
	go func() {
		defer close(done)
		var err error
		if receiver {
			err = follow(ctx, s, func(ctx context.Context) (transport.Connection, error) {
				return transport.DialWS(ctx, transport.KindNative, hub.ReceiverURL(name), cfg.Token, pingInterval)
			})
		} else {
			err = display(ctx, s, params, sessions, hub, cfg)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("display: %v", err)
		}
	}()

	_, runErr := prog.Run()
	cancel()
	s.Close()
	<-done
	return runErr
}

// display resolves a display link and follows its transport. Session links
// poll the store; links carrying a channel join the presenter's window
// channel; plain direct links are static.
func display(ctx context.Context, s *surface.Surface, params displayurl.Params, sessions session.Store, hub *client.Hub, cfg *config.Client) error {
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	err := s.Resolve(rctx, params, sessions)
	cancel()
	if err != nil {
		return err
	}

	switch {
	case params.Mode() == displayurl.ModeSession:
		if err := s.Attach(transport.NewPoller(sessions, params.SessionID, cfg.PollInterval)); err != nil {
			return err
		}
	case params.Channel != "":
		conn, err := transport.DialWS(ctx, transport.KindWindow, hub.SurfaceURL(params.Channel, s.View().Name), cfg.Token, pingInterval)
		if err != nil {
			return fmt.Errorf("joining channel %s: %w", params.Channel, err)
		}
		if err := s.Attach(conn); err != nil {
			conn.Close()
			return err
		}
	}
	return s.Run(ctx)
}

// follow keeps a receiver registered, redialing whenever its connection
// drops.
func follow(ctx context.Context, s *surface.Surface, dial func(context.Context) (transport.Connection, error)) error {
	for {
		conn, err := dial(ctx)
		if err == nil {
			if err := s.Attach(conn); err != nil {
				conn.Close()
				return err
			}
			log.Infof("registered as a receiver")
			if err := s.Run(ctx); err != nil {
				return err
			}
		} else {
			log.Warningf("receiver registration failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redialBackoff):
		}
	}
}
