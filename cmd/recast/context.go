package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"recast/internal/config"
	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the shared database for the duration of one command. The
// daemon and the CLI use the same file; SQLite's locking arbitrates access.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()
	return fn(s)
}

// withQueue opens the store together with the durable job queue. CLI
// submissions always go through the durable backend so a daemon running
// alongside picks them up; nothing is consumed here.
func (c *commandContext) withQueue(fn func(*store.Store, *jobs.Durable) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withStore(func(s *store.Store) error {
		queue, err := jobs.NewDurable(s.DB(), jobs.DurableOptions{
			PollInterval:       time.Duration(cfg.Queue.PollInterval) * time.Second,
			ErrorRetryInterval: time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second,
			MaxAttempts:        cfg.Queue.MaxAttempts,
			InitialBackoff:     time.Duration(cfg.Queue.InitialBackoffSeconds) * time.Second,
		}, logging.NewNop())
		if err != nil {
			return fmt.Errorf("open job queue: %w", err)
		}
		return fn(s, queue)
	})
}

func (c *commandContext) submit(ctx context.Context, queue *jobs.Durable, name string, payload any) error {
	if err := queue.Submit(ctx, name, payload, jobs.SubmitOptions{}); err != nil {
		return fmt.Errorf("enqueue %s job: %w", name, err)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
