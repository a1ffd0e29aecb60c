package transport

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lessoncast/lessoncast/internal/displayurl"
	"github.com/lessoncast/lessoncast/internal/protocol"
)

// URLPlaceholder is replaced with the display URL in a window command.
const URLPlaceholder = "{url}"

const defaultJoinTimeout = 10 * time.Second

// Launcher starts the process that opens a display window.
type Launcher func(argv []string) error

// ExecLauncher starts argv and reaps it in the background.
func ExecLauncher(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debugf("window command %s exited: %v", argv[0], err)
		}
	}()
	return nil
}

// WindowStrategy opens a second display window with a configured command and
// drives it through a hub channel. The open only counts as successful once
// the window's surface has joined the channel.
type WindowStrategy struct {
	API         HubAPI
	Command     []string
	Launch      Launcher
	JoinTimeout time.Duration
	Ping        time.Duration
}

func (s *WindowStrategy) Kind() Kind { return KindWindow }

func (s *WindowStrategy) Probe(ctx context.Context) bool {
	if len(s.Command) == 0 {
		return false
	}
	if s.Launch != nil {
		return true
	}
	_, err := exec.LookPath(s.Command[0])
	return err == nil
}

// Argv substitutes link into command.
func Argv(command []string, link string) []string {
	argv := make([]string, len(command))
	found := false
	for i, a := range command {
		if strings.Contains(a, URLPlaceholder) {
			found = true
		}
		argv[i] = strings.ReplaceAll(a, URLPlaceholder, link)
	}
	if !found {
		argv = append(argv, link)
	}
	return argv
}

func (s *WindowStrategy) Connect(ctx context.Context, target Target) (Connection, error) {
	channelID, err := s.API.CreateChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	conn, err := DialWS(ctx, KindWindow, s.API.ChannelURL(channelID, protocol.RolePresenter), s.API.Token(), s.Ping)
	if err != nil {
		return nil, err
	}
	link := displayurl.Params{
		LessonID:      target.LessonID,
		FragmentIndex: target.FragmentIndex,
		Categories:    target.Categories,
		Channel:       channelID,
	}.URL(s.API.DisplayBase())

	launch := s.Launch
	if launch == nil {
		launch = ExecLauncher
	}
	if err := launch(Argv(s.Command, link)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrWindowBlocked, err)
	}

	timeout := s.JoinTimeout
	if timeout <= 0 {
		timeout = defaultJoinTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := conn.Await(wctx, protocol.MsgSurfaceJoined); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: window never joined: %v", ErrWindowBlocked, err)
	}
	return &windowConn{WSConn: conn}, nil
}

// windowConn ends the presentation when its single window surface leaves.
type windowConn struct {
	*WSConn
}

func (w *windowConn) OnMessage(handler func(protocol.Message)) {
	w.WSConn.OnMessage(func(m protocol.Message) {
		handler(m)
		if m.Type == protocol.MsgSurfaceLeft {
			log.Infof("display window closed")
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			w.WSConn.Send(ctx, protocol.Terminate(protocol.ReasonWindowClosed))
			cancel()
			w.WSConn.Close()
		}
	})
}

func (w *windowConn) Redial(ctx context.Context) (Connection, error) {
	c, err := w.WSConn.Redial(ctx)
	if err != nil {
		return nil, err
	}
	return &windowConn{WSConn: c.(*WSConn)}, nil
}
