package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"dropcat.dev/dropcat/config"
	"dropcat.dev/dropcat/identity"
	"dropcat.dev/dropcat/internal/ui"
	"dropcat.dev/dropcat/keyring"
)

// run executes one CLI invocation against dir and returns captured ui output.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := ui.Out
	ui.Out = &buf
	defer func() { ui.Out = prev }()

	cmd := newRootCommand(pslog.NoopLogger())
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestKeyGenerateAndList(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "key", "generate", "work")
	if err != nil {
		t.Fatalf("key generate: %v", err)
	}
	if !strings.Contains(out, "generated key work") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, dir, "key", "list")
	if err != nil {
		t.Fatalf("key list: %v", err)
	}
	if !strings.Contains(out, "* work") {
		t.Fatalf("first key should be listed as default: %q", out)
	}
}

func TestKeyGenerateDuplicateIsReported(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "key", "generate", "work"); err != nil {
		t.Fatalf("key generate: %v", err)
	}
	_, err := run(t, dir, "key", "generate", "work")
	if err == nil {
		t.Fatalf("duplicate key generate should fail")
	}
}

func TestHostAddListRemove(t *testing.T) {
	dir := t.TempDir()
	sec, err := identity.Generate(rand.Reader)
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	id := sec.Public().String()

	out, err := run(t, dir, "host", "add", "laptop", id, "--description", "work machine", "--addr", "10.0.0.5:41170")
	if err != nil {
		t.Fatalf("host add: %v", err)
	}
	if !strings.Contains(out, "added host laptop") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = run(t, dir, "host", "list")
	if err != nil {
		t.Fatalf("host list: %v", err)
	}
	if !strings.Contains(out, "laptop") || !strings.Contains(out, id) {
		t.Fatalf("host missing from list: %q", out)
	}

	out, err = run(t, dir, "host", "show", "laptop")
	if err != nil {
		t.Fatalf("host show: %v", err)
	}
	if !strings.Contains(out, "10.0.0.5:41170") {
		t.Fatalf("stored address missing from show: %q", out)
	}

	if _, err := run(t, dir, "host", "remove", "laptop"); err != nil {
		t.Fatalf("host remove: %v", err)
	}
	if _, err := run(t, dir, "host", "remove", "laptop"); err == nil {
		t.Fatalf("removing a removed host should fail")
	}
}

func TestHostRenameConflictIsReported(t *testing.T) {
	dir := t.TempDir()
	for _, alias := range []string{"one", "two"} {
		sec, err := identity.Generate(rand.Reader)
		if err != nil {
			t.Fatalf("identity.Generate: %v", err)
		}
		if _, err := run(t, dir, "host", "add", alias, sec.Public().String()); err != nil {
			t.Fatalf("host add %s: %v", alias, err)
		}
	}
	if _, err := run(t, dir, "host", "rename", "one", "two"); err == nil {
		t.Fatalf("rename onto a taken alias should fail")
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(src, []byte("store me"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out, err := run(t, dir, "store", "put", src)
	if err != nil {
		t.Fatalf("store put: %v", err)
	}
	if !strings.Contains(out, "stored ") {
		t.Fatalf("unexpected output: %q", out)
	}

	// The digest is the 64-char hex token in the output.
	var digest string
	for _, tok := range strings.Fields(out) {
		if len(tok) == 64 {
			digest = tok
		}
	}
	if digest == "" {
		t.Fatalf("no digest in output: %q", out)
	}

	if _, err := run(t, dir, "store", "has", digest); err != nil {
		t.Fatalf("store has: %v", err)
	}
	if _, err := run(t, dir, "store", "has", strings.Repeat("0", 64)); err == nil {
		t.Fatalf("store has on absent digest should fail")
	}
}

func TestStoreBackendsListsRegistered(t *testing.T) {
	out, err := run(t, t.TempDir(), "store", "backends")
	if err != nil {
		t.Fatalf("store backends: %v", err)
	}
	for _, name := range []string{"localfs", "grpc"} {
		if !strings.Contains(out, name) {
			t.Fatalf("backend %q missing from %q", name, out)
		}
	}
}

func TestKeyResolveUsesConfigDir(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "key", "generate", "work"); err != nil {
		t.Fatalf("key generate: %v", err)
	}
	ring := keyring.New(config.Dir(dir))
	if _, err := ring.Get("work"); err != nil {
		t.Fatalf("key should be persisted under the config dir: %v", err)
	}
}
