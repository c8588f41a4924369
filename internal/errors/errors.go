package errors

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"net"
	"os"

	"github.com/lib/pq"

	"github.com/AjCodes/FocusUp-sub000/internal/logger"
)

// Kind classifies failures of remote and migration operations.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetworkUnavailable means the remote call could not complete; the operation proceeds cache-only.
	KindNetworkUnavailable
	// KindConstraintViolation means the remote store rejected a write.
	KindConstraintViolation
	// KindNotFound means the remote update/delete target is missing. Callers treat it as satisfied.
	KindNotFound
	// KindMigrationFailure means guest-to-account re-parenting did not finish.
	KindMigrationFailure
)

var (
	ErrNetworkUnavailable  = stderrors.New("network unavailable")
	ErrConstraintViolation = stderrors.New("constraint violation")
	ErrNotFound            = stderrors.New("not found")
	ErrMigrationFailure    = stderrors.New("migration failure")
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindConstraintViolation:
		return "constraint_violation"
	case KindNotFound:
		return "not_found"
	case KindMigrationFailure:
		return "migration_failure"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetworkUnavailable:
		return ErrNetworkUnavailable
	case KindConstraintViolation:
		return ErrConstraintViolation
	case KindNotFound:
		return ErrNotFound
	case KindMigrationFailure:
		return ErrMigrationFailure
	default:
		return nil
	}
}

// SyncError describes a failed remote operation on a single record.
type SyncError struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *SyncError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// Wrap classifies err and wraps it in a SyncError. It returns nil for a nil err.
func Wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var se *SyncError
	if stderrors.As(err, &se) {
		return err
	}
	return &SyncError{Kind: Classify(err), Op: op, ID: id, Err: err}
}

// Classify maps driver and transport errors onto the taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var se *SyncError
	if stderrors.As(err, &se) {
		return se.Kind
	}

	switch {
	case stderrors.Is(err, ErrNetworkUnavailable):
		return KindNetworkUnavailable
	case stderrors.Is(err, ErrConstraintViolation):
		return KindConstraintViolation
	case stderrors.Is(err, ErrNotFound), stderrors.Is(err, sql.ErrNoRows):
		return KindNotFound
	case stderrors.Is(err, ErrMigrationFailure):
		return KindMigrationFailure
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, driver.ErrBadConn), stderrors.Is(err, sql.ErrConnDone):
		return KindNetworkUnavailable
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23": // integrity_constraint_violation
			return KindConstraintViolation
		case "08": // connection_exception
			return KindNetworkUnavailable
		}
		return KindUnknown
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return KindNetworkUnavailable
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return KindNetworkUnavailable
	}

	return KindUnknown
}

// IsNotFound reports whether err means the remote target no longer exists.
func IsNotFound(err error) bool {
	return Classify(err) == KindNotFound
}

// IsRecoverable reports whether the local state can stand while the remote catches up later.
func IsRecoverable(err error) bool {
	switch Classify(err) {
	case KindNetworkUnavailable, KindConstraintViolation, KindNotFound:
		return true
	default:
		return false
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}
