package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
)

// DefaultGracefulTimeout bounds Close after Run or RunTask returns.
const DefaultGracefulTimeout = 15 * time.Second

// Run starts the client, blocks until SIGINT, SIGTERM or ctx is done, then
// closes it.
func (c *Client) Run(ctx context.Context) error {
	if err := c.startup(ctx); err != nil {
		return err
	}
	c.log.Info("client ready, waiting for shutdown signal")
	c.WaitForSignal(ctx)
	return c.shutdown()
}

// RunTask starts the client, runs task with a context canceled on SIGINT or
// SIGTERM, then closes the client. The task error wins over a close error.
//
//	client.RunTask(ctx, func(ctx context.Context) error {
//	    _, err := client.SendSync(ctx, req)
//	    return err
//	})
func (c *Client) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := c.startup(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			c.log.Info("received signal, canceling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)
	if err := c.shutdown(); err != nil && taskErr == nil {
		return err
	}
	return taskErr
}

// WaitForSignal blocks until an interrupt or term signal arrives or ctx is
// done. It returns nil in the latter case.
func (c *Client) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.log.Info("received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		c.log.Info("context canceled, shutting down")
		return nil
	}
}

func (c *Client) startup(ctx context.Context) error {
	start := time.Now()
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting client: %w", err)
	}
	for _, h := range c.Health(ctx) {
		if h.Status != module.StatusHealthy {
			c.log.Warn("module not healthy after start", logger.Fields(
				"module", h.Name, "status", string(h.Status), "message", h.Message))
		}
	}
	c.log.Info("client started", logger.MergeWithDuration(logger.Fields(
		"name", c.cfg.Name,
		"modules", c.modules.Names(),
	), time.Since(start)))
	return nil
}

func (c *Client) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultGracefulTimeout)
	defer cancel()
	c.log.Info("shutting down client", logger.Fields("timeout", DefaultGracefulTimeout.String()))
	return c.Close(ctx)
}
