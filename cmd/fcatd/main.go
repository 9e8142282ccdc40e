package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filecatalog/internal/app"
	"filecatalog/internal/config"
	"filecatalog/internal/fcatd"
	"filecatalog/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "config file (default .fcat/config.yaml)")
	listen := flag.String("listen", "", "listen address (tcp), default from config")
	watchRoots := flag.Bool("watch", false, "watch the configured scan roots")
	flag.Parse()

	if err := run(*configPath, *listen, *watchRoots); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			_, _ = fmt.Fprintf(os.Stderr, "listen address in use: %s\nTry: -listen 127.0.0.1:7879\n", *listen)
		} else {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(configPath, listen string, watchRoots bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Daemon.Listen
	}

	log, closer, err := logger.Setup(cfg.Log.Level, cfg.Log.File, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	env, err := app.Open(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = env.Close() }()

	h := fcatd.NewHandlers(env)
	defer func() { _ = h.Close() }()
	if watchRoots {
		if _, err := h.WatchStart(fcatd.WatchStartParams{SyncOnStart: true}); err != nil {
			return err
		}
	}

	s := fcatd.NewServer(fcatd.Options{Listen: listen, Logger: log}, h)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		_ = s.Close()
	}()
	return s.Run()
}
