package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lessoncast/lessoncast/internal/applog"
	"github.com/lessoncast/lessoncast/internal/config"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/hub"
	"github.com/lessoncast/lessoncast/internal/relay"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger(applog.Module)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	lessonsDir := flag.String("lessons", "", "Override lessons directory")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *lessonsDir != "" {
		cfg.Content.LessonsDir = *lessonsDir
	}
	if err := applog.Init(cfg.Log.Level, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run(cfg *config.Config) error {
	lessons, err := content.LoadLibrary(cfg.Content.LessonsDir)
	if err != nil {
		return fmt.Errorf("loading lessons: %w", err)
	}
	log.Infof("loaded %d lessons from %s", len(lessons.IDs()), cfg.Content.LessonsDir)

	var store session.Store
	if cfg.Sessions.Dir != "" {
		fs, err := session.NewFileStore(cfg.Sessions.Dir)
		if err != nil {
			return err
		}
		log.Infof("sessions stored in %s", cfg.Sessions.Dir)
		store = fs
	} else {
		store = session.NewMemoryStore()
	}

	var r relay.Relay = relay.Noop{}
	if cfg.Relay.AMQPURL != "" {
		a, err := relay.DialAMQP(cfg.Relay.AMQPURL, cfg.Relay.Exchange)
		if err != nil {
			return fmt.Errorf("connecting relay: %w", err)
		}
		log.Infof("relaying channels over exchange %s", cfg.Relay.Exchange)
		r = a
	}

	h := hub.New(hub.Options{
		MaxConnections: cfg.Hub.MaxConnections,
		SendBuffer:     cfg.Hub.SendBuffer,
		PingInterval:   cfg.Hub.PingInterval,
		PresenterGrace: cfg.Hub.PresenterGrace,
		ChannelTTL:     cfg.Hub.ChannelTTL,
	}, r)
	defer h.Close()

	server := hub.NewServer(cfg, h, store, lessons)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go server.Run(ctx)

	log.Infof("share links point at %s", cfg.PublicBase())
	if err := hub.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler()); err != nil {
		return err
	}
	log.Info("shut down")
	return nil
}
