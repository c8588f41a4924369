package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const commandTimeout = 30 * time.Second

// TestEndToEndWorkflow drives a prebuilt binary through a full session.
// Set FOCUSUP_BIN to the binary path to run it.
func TestEndToEndWorkflow(t *testing.T) {
	cliPath := os.Getenv("FOCUSUP_BIN")
	if cliPath == "" {
		t.Skip("FOCUSUP_BIN not set")
	}
	cliPath, _ = filepath.Abs(cliPath)
	if _, err := os.Stat(cliPath); err != nil {
		t.Fatalf("CLI binary not found at %s: %v", cliPath, err)
	}

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "focusup", "config.toml")

	var env []string
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "HOME=") && !strings.HasPrefix(e, "FOCUSUP_DB_CONNECTION=") {
			env = append(env, e)
		}
	}
	env = append(env, "HOME="+tempDir)

	// --user keeps the run away from the OS keyring
	run := func(args ...string) string {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		full := append([]string{"--config", configPath, "--user", "e2e-user"}, args...)
		cmd := exec.CommandContext(ctx, cliPath, full...)
		cmd.Env = env
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			t.Fatalf("focusup %s failed: %v\n%s", strings.Join(args, " "), err, out.String())
		}
		return out.String()
	}

	run("init")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	out := run("task", "add", "Write the report", "-p", "high")
	taskID := idFrom(t, out)
	run("habit", "add", "Stretch", "-a", "PH")
	out = run("session", "create", "-m", "25", "-s")
	sessionID := strings.Fields(strings.TrimPrefix(out, "Created 25-minute session "))[0]

	run("session", "link", sessionID, "-t", taskID)
	out = run("session", "complete", sessionID, "--all", "-m", "25")
	if !strings.Contains(out, "coins") {
		t.Errorf("expected a reward summary, got:\n%s", out)
	}

	out = run("stats")
	if !strings.Contains(out, "1 session(s)") {
		t.Errorf("expected one session in stats, got:\n%s", out)
	}

	run("backup", "create")
	out = run("backup", "list")
	if !strings.Contains(out, "focusup-") {
		t.Errorf("expected a backup in the list, got:\n%s", out)
	}
	run("validate")
	run("sync")
}

func idFrom(t *testing.T, out string) string {
	t.Helper()
	i := strings.Index(out, "(ID: ")
	if i == -1 {
		t.Fatalf("no id in output: %s", out)
	}
	rest := out[i+len("(ID: "):]
	return rest[:strings.Index(rest, ")")]
}
