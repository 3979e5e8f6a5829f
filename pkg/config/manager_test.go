package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vnykmshr/tickflow/internal/testutil"
	"github.com/vnykmshr/tickflow/pkg/logx"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestManagerLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickflow.yaml")
	writeConfig(t, path, sample)

	m := NewManager(path, logx.Nop())
	testutil.AssertEqual(t, m.Get() == nil, true)

	cfg, err := m.Load()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, m.Get(), cfg)
	testutil.AssertEqual(t, m.Path(), path)

	missing := NewManager(filepath.Join(t.TempDir(), "nope.yaml"), logx.Nop())
	_, err = missing.Load()
	testutil.AssertError(t, err)
}

func TestManagerPublishKeepsNewest(t *testing.T) {
	m := NewManager("unused.yaml", logx.Nop())
	ch := m.Subscribe(1)

	first, second := Default(), Default()
	m.publish(first)
	m.publish(second)

	testutil.AssertEqual(t, <-ch, second)

	m.Unsubscribe(ch)
	_, open := <-ch
	testutil.AssertEqual(t, open, false)

	// Publishing with no subscribers is a no-op.
	m.publish(first)
}

func TestManagerReloadSkipsInvalidAndUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickflow.yaml")
	writeConfig(t, path, sample)

	m := NewManager(path, logx.Nop())
	orig, err := m.Load()
	testutil.AssertNoError(t, err)
	ch := m.Subscribe(4)

	m.reload()
	testutil.AssertEqual(t, len(ch), 0)

	writeConfig(t, path, "host:\n  target_fps: -1\n")
	m.reload()
	testutil.AssertEqual(t, len(ch), 0)
	testutil.AssertEqual(t, m.Get(), orig)

	writeConfig(t, path, "host:\n  target_fps: 144\n")
	m.reload()
	testutil.AssertEqual(t, len(ch), 1)
	testutil.AssertEqual(t, (<-ch).Host.TargetFPS, 144.0)
}

func TestManagerWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickflow.yaml")
	writeConfig(t, path, sample)

	m := NewManager(path, logx.Nop())
	m.SetDebounce(20 * time.Millisecond)
	_, err := m.Load()
	testutil.AssertNoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// The watcher may not be registered yet; keep rewriting until a reload lands.
	var got *Config
	testutil.Eventually(t, func() bool {
		writeConfig(t, path, "host:\n  target_fps: 120\n")
		select {
		case got = <-ch:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	testutil.AssertEqual(t, got.Host.TargetFPS, 120.0)

	cancel()
	select {
	case err := <-done:
		testutil.AssertNoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
