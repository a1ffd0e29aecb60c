package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docopt/docopt-go"
	"github.com/lessoncast/lessoncast/internal/applog"
	"github.com/lessoncast/lessoncast/internal/client"
	"github.com/lessoncast/lessoncast/internal/config"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/presenter"
	"github.com/lessoncast/lessoncast/internal/share"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/lessoncast/lessoncast/internal/tui/presenterapp"
	"github.com/op/go-logging"
)

const PresenterVersion = "0.3.0"

const (
	pingInterval     = 20 * time.Second
	reconnectBackoff = time.Second
	setupTimeout     = 10 * time.Second
)

var log = logging.MustGetLogger(applog.Module)

func main() {
	usage := `Lessoncast presenter.

Presents a lesson on connected displays and shares read-only links to it.
Configuration is read from --config and LESSONCAST_* environment variables.

Usage:
    presenter present <lesson> [--fragment=<n>] [--type=<list>] [--receiver=<name>]
        [--config=<path>] [--server=<url>] [--log-file=<file>]
    presenter share <lesson> --type=<list> [--fragment=<n>]
        [--config=<path>] [--server=<url>] [--log-file=<file>]
    presenter lessons [--config=<path>] [--server=<url>]
    presenter -h | --help
    presenter --version

Options:
    -h --help            Show this screen.
    --version            Show version.
    --fragment=<n>       Fragment to start on [default: 0].
    --type=<list>        Comma separated categories: reading, slide, aids, notes.
    --receiver=<name>    Prefer the native display registered under this name.
    --config=<path>      YAML client config.
    --server=<url>       Relay server URL, overrides server-url.
    --log-file=<file>    Write logs here instead of discarding them.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], PresenterVersion)
	if err != nil {
		panic(err)
	}

	if present_, _ := opts.Bool("present"); present_ {
		err = present(opts)
	} else if share_, _ := opts.Bool("share"); share_ {
		err = shareLink(opts)
	} else if lessons_, _ := opts.Bool("lessons"); lessons_ {
		err = listLessons(opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type env struct {
	cfg      *config.Client
	http     *client.HTTPClient
	sessions *client.Sessions
	lessons  *client.Lessons
	hub      *client.Hub
	logFile  io.Closer
}

func setup(opts docopt.Opts) (*env, error) {
	path, _ := opts.String("--config")
	overrides := map[string]interface{}{}
	if server, _ := opts.String("--server"); server != "" {
		overrides["server-url"] = server
	}
	if logFile, _ := opts.String("--log-file"); logFile != "" {
		overrides["log-file"] = logFile
	}
	cfg, err := config.LoadClient(path, overrides)
	if err != nil {
		return nil, err
	}

	w, err := applog.OpenFile(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	if err := applog.Init(cfg.LogLevel, w); err != nil {
		w.Close()
		return nil, err
	}

	h := client.NewHTTPClient(cfg.ServerURL, cfg.Token)
	return &env{
		cfg:      cfg,
		http:     h,
		sessions: client.NewSessions(h),
		lessons:  client.NewLessons(h),
		hub:      client.NewHub(h),
		logFile:  w,
	}, nil
}

func (e *env) loadLesson(opts docopt.Opts) (*content.Lesson, int, error) {
	id, _ := opts.String("<lesson>")
	fragment, err := opts.Int("--fragment")
	if err != nil {
		return nil, 0, fmt.Errorf("--fragment: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	lesson, err := e.lessons.Lesson(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return lesson, fragment, nil
}

func categories(opts docopt.Opts, fallback content.CategorySet) (content.CategorySet, error) {
	list, _ := opts.String("--type")
	if list == "" {
		return fallback, nil
	}
	return content.ParseCategories(list)
}

func (e *env) controller(lesson *content.Lesson, fragment int) *presenter.Controller {
	return presenter.New(lesson, fragment, e.sessions, presenter.WithHeartbeat(e.cfg.HeartbeatInterval))
}

func (e *env) sharer() *share.Controller {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	return share.New(e.sessions, e.http.PublicBase(ctx))
}

func present(opts docopt.Opts) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.logFile.Close()

	lesson, fragment, err := e.loadLesson(opts)
	if err != nil {
		return err
	}
	cats, err := categories(opts, content.CategorySet{content.Slide})
	if err != nil {
		return err
	}
	receiver, _ := opts.String("--receiver")

	strategies := []transport.Strategy{
		&transport.NativeStrategy{API: e.hub, Receiver: receiver, Ping: pingInterval},
	}
	if len(e.cfg.WindowCommand) > 0 {
		strategies = append(strategies, &transport.WindowStrategy{
			API:     e.hub,
			Command: e.cfg.WindowCommand,
			Ping:    pingInterval,
		})
	}

	var prog *tea.Program
	adapter := transport.NewAdapter(strategies,
		transport.WithReconnect(e.cfg.ReconnectAttempts, reconnectBackoff),
		transport.WithPhaseObserver(func(p transport.Phase) {
			if prog != nil {
				prog.Send(presenterapp.PhaseMsg(p))
			}
		}),
	)

	ctrl := e.controller(lesson, fragment)
	model := presenterapp.New(presenterapp.Config{
		Controller: ctrl,
		Adapter:    adapter,
		Share:      e.sharer(),
		Categories: cats,
	})

	log.Infof("presenting %s from fragment %d", lesson.ID, ctrl.Index())
	prog = tea.NewProgram(model, tea.WithAltScreen())
	_, runErr := prog.Run()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := ctrl.End(ctx); err != nil {
		log.Warningf("ending presentation: %v", err)
	}
	return runErr
}

// shareLink creates a session, prints its link and keeps it alive until
// interrupted.
func shareLink(opts docopt.Opts) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.logFile.Close()

	lesson, fragment, err := e.loadLesson(opts)
	if err != nil {
		return err
	}
	cats, err := categories(opts, nil)
	if err != nil {
		return err
	}

	ctrl := e.controller(lesson, fragment)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sctx, cancel := context.WithTimeout(ctx, setupTimeout)
	ref, err := e.sharer().Share(sctx, ctrl, cats)
	cancel()
	if err != nil {
		return err
	}
	fmt.Println(ref.Link)
	fmt.Fprintf(os.Stderr, "Sharing %s (%s). Press Ctrl+C to end the session.\n", lesson.Title, ref.Categories)

	<-ctx.Done()
	ectx, ecancel := context.WithTimeout(context.Background(), setupTimeout)
	defer ecancel()
	return ctrl.End(ectx)
}

func listLessons(opts docopt.Opts) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.logFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	ids, err := e.lessons.IDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
