package errors

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "no rows", err: fmt.Errorf("get task: %w", sql.ErrNoRows), want: KindNotFound},
		{name: "deadline", err: context.DeadlineExceeded, want: KindNetworkUnavailable},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: KindConstraintViolation},
		{name: "fk violation", err: &pq.Error{Code: "23503"}, want: KindConstraintViolation},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: KindNetworkUnavailable},
		{name: "syntax error", err: &pq.Error{Code: "42601"}, want: KindUnknown},
		{name: "dial error", err: &net.OpError{Op: "dial", Net: "tcp", Err: stderrors.New("connection refused")}, want: KindNetworkUnavailable},
		{name: "sentinel", err: fmt.Errorf("insert: %w", ErrNetworkUnavailable), want: KindNetworkUnavailable},
		{name: "plain", err: stderrors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap("update", "t1", nil) != nil {
		t.Fatal("Wrap(nil) should return nil")
	}

	err := Wrap("update", "t1", &pq.Error{Code: "23505", Message: "duplicate key"})
	if !stderrors.Is(err, ErrConstraintViolation) {
		t.Errorf("wrapped error should match ErrConstraintViolation: %v", err)
	}
	if !IsRecoverable(err) {
		t.Error("constraint violation should be recoverable")
	}
	if !strings.Contains(err.Error(), "update t1: constraint_violation") {
		t.Errorf("unexpected message %q", err.Error())
	}

	var se *SyncError
	if !stderrors.As(err, &se) || se.Op != "update" || se.ID != "t1" {
		t.Errorf("expected SyncError with op/id, got %#v", err)
	}

	// Wrapping twice keeps the original classification
	again := Wrap("refresh", "", err)
	if again != err {
		t.Error("Wrap should not re-wrap a SyncError")
	}

	if IsRecoverable(Wrap("migrate", "", ErrMigrationFailure)) {
		t.Error("migration failure should not be recoverable")
	}
	if !IsNotFound(Wrap("delete", "t2", sql.ErrNoRows)) {
		t.Error("no rows should be not found")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "simple error", err: stderrors.New("something went wrong"), expected: "Error: something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Format(tt.err); result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}

	if got := Formatf("failed to load %s", "cache"); got != "Error: failed to load cache" {
		t.Errorf("Formatf() = %q", got)
	}
}

// TestFatal runs Fatal in a subprocess and checks the exit code and stderr
func TestFatal(t *testing.T) {
	if os.Getenv("GO_TEST_FATAL") == "1" {
		Fatal(stderrors.New("test error"))
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFatal")
	cmd.Env = append(os.Environ(), "GO_TEST_FATAL=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !stderrors.As(err, &exitErr) {
		t.Fatalf("Fatal() did not exit with error, err = %v", err)
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("Fatal() exit code = %d, want 1", exitErr.ExitCode())
	}
	if !strings.Contains(stderr.String(), "Error: test error") {
		t.Errorf("Fatal() stderr = %q", stderr.String())
	}
}
