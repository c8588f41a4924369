package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AjCodes/FocusUp-sub000/internal/api"
	"github.com/AjCodes/FocusUp-sub000/internal/logger"
)

type ServeCmd struct {
	Addr  string `help:"Listen address. Defaults to the [server] addr from the config file."`
	Debug bool   `help:"Log every request."`
}

func (c *ServeCmd) Run(ctx *Context) error {
	addr := c.Addr
	if addr == "" {
		addr = ctx.Config.Server.Addr
	}
	logger.InitWriter(os.Stderr, c.Debug)

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(
			&api.RewardHandler{Rewarder: ctx.Rewards},
			&api.ReadHandler{Reader: ctx.Coord},
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr, "remote", ctx.Coord.Online())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
