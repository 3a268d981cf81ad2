package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quilang-hardware/hardy/internal/config"
)

const counterYAML = `
server:
  log_level: info
assistant:
  api_key: test-key
  voice: Charon
tools:
  low_stock_threshold: 50
`

type reload struct{ old, next *config.Config }

// startWatcher writes content to a fresh config file and watches it at a
// short interval. Reloads are delivered on the returned channel.
func startWatcher(t *testing.T, content string) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)

	ch := make(chan reload, 4)
	w, err := config.NewWatcher(path, func(old, next *config.Config) {
		ch <- reload{old, next}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, ch
}

// rewrite replaces the file content and bumps its mtime so the next poll
// notices even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	writeFile(t, path, content)
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// ── Reloads ──────────────────────────────────────────────────────────────────

func TestWatcher_ReloadsAndDiffs(t *testing.T) {
	t.Parallel()

	path, w, ch := startWatcher(t, counterYAML)
	if got := w.Current().Assistant.Voice; got != "Charon" {
		t.Fatalf("initial voice = %q, want Charon", got)
	}

	rewrite(t, path, `
server:
  log_level: debug
assistant:
  api_key: test-key
  voice: Puck
tools:
  low_stock_threshold: 20
`)

	var r reload
	select {
	case r = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
	}

	if r.old.Assistant.Voice != "Charon" || r.next.Assistant.Voice != "Puck" {
		t.Errorf("voice %q -> %q, want Charon -> Puck", r.old.Assistant.Voice, r.next.Assistant.Voice)
	}
	d := config.Diff(r.old, r.next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff log level = %+v, want change to debug", d)
	}
	if !d.AssistantChanged {
		t.Error("Diff should report the assistant change")
	}
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "tools" {
		t.Errorf("RestartRequired = %v, want [tools]", d.RestartRequired)
	}
	if got := w.Current().Tools.LowStockThreshold; got != 20 {
		t.Errorf("Current threshold = %d, want 20", got)
	}
}

func TestWatcher_IgnoresEdits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(t *testing.T, path string)
	}{
		{
			name: "invalid log level",
			edit: func(t *testing.T, path string) {
				rewrite(t, path, "server:\n  log_level: bananas\n")
			},
		},
		{
			name: "unknown field",
			edit: func(t *testing.T, path string) {
				rewrite(t, path, counterYAML+"cashier: Juan\n")
			},
		},
		{
			name: "unsupported store driver",
			edit: func(t *testing.T, path string) {
				rewrite(t, path, counterYAML+"store:\n  driver: mongo\n")
			},
		},
		{
			name: "same content rewritten",
			edit: func(t *testing.T, path string) {
				rewrite(t, path, counterYAML)
			},
		},
		{
			name: "touch only",
			edit: func(t *testing.T, path string) {
				later := time.Now().Add(2 * time.Second)
				if err := os.Chtimes(path, later, later); err != nil {
					t.Fatalf("Chtimes: %v", err)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path, w, ch := startWatcher(t, counterYAML)
			tc.edit(t, path)

			select {
			case r := <-ch:
				t.Fatalf("unexpected reload to %+v", r.next.Server)
			case <-time.After(200 * time.Millisecond):
			}
			if got := w.Current().Assistant.Voice; got != "Charon" {
				t.Errorf("Current voice = %q, want Charon kept", got)
			}
		})
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_StopHaltsReloads(t *testing.T) {
	t.Parallel()

	path, w, ch := startWatcher(t, counterYAML)
	w.Stop()
	w.Stop()

	rewrite(t, path, "assistant:\n  voice: Puck\n")
	select {
	case <-ch:
		t.Fatal("reload after Stop")
	case <-time.After(100 * time.Millisecond):
	}
	if got := w.Current().Assistant.Voice; got != "Charon" {
		t.Errorf("Current voice = %q, want Charon", got)
	}
}
