package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"recast/internal/config"
	"recast/internal/logging"
	"recast/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.Bind = "127.0.0.1:0"
	cfg.Queue.Backend = "direct"
	cfg.Scheduler.Enabled = false
	return &cfg
}

func TestCredentialPrecedence(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "recast.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	t.Setenv("RECAST_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	// Nothing but the config file value.
	got, err := resolveCredential(ctx, s, store.SettingLLMAPIKey, "from-config", "RECAST_LLM_API_KEY", "OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "from-config" {
		t.Fatalf("got %q, want config value", got)
	}

	// A settings-table value overrides the config file.
	if err := s.SetSetting(ctx, store.SettingLLMAPIKey, "from-setting"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	got, err = resolveCredential(ctx, s, store.SettingLLMAPIKey, "from-config", "RECAST_LLM_API_KEY", "OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "from-setting" {
		t.Fatalf("got %q, want setting value", got)
	}

	// The environment overrides both, even when the config value is set.
	t.Setenv("OPENAI_API_KEY", "from-env")
	got, err = resolveCredential(ctx, s, store.SettingLLMAPIKey, "from-config", "RECAST_LLM_API_KEY", "OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("got %q, want env value", got)
	}

	// Earlier env names take precedence over later ones.
	t.Setenv("RECAST_LLM_API_KEY", "from-primary-env")
	got, err = resolveCredential(ctx, s, store.SettingLLMAPIKey, "from-config", "RECAST_LLM_API_KEY", "OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "from-primary-env" {
		t.Fatalf("got %q, want primary env value", got)
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status()
	if !status.Running || status.QueueBackend != "direct" {
		t.Fatalf("unexpected status: %+v", status)
	}
	d.Stop()
	if d.Status().Running {
		t.Fatal("daemon still reports running after stop")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must not start while the lock is held")
	}
}

func TestDaemonRestartsAfterStop(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	d.Stop()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	d.Stop()
}
