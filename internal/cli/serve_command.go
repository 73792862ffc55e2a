package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"game-fix-manager/internal/httpapi"
)

func runServe(args []string) error {
	fs, common := newFlagSet("serve")
	addr := fs.String("addr", "", "listen address (default listen_addr from config)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	a, err := newApp(common)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := a.cfg.ListenAddr
	if *addr != "" {
		listen = *addr
	}
	opts := httpapi.Options{
		Addr:    listen,
		Metrics: a.prom.Handler(),
		Logger:  a.logger,
	}
	if a.ledger != nil {
		opts.History = a.ledger
	}
	srv := httpapi.NewServer(a.sup, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
