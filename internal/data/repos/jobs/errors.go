package jobs

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
)

type coder interface{ Code() string }

type stacker interface{ Stack() string }

// Describe converts an error into the ledger's {message, stack, code} document.
// Code and stack are taken from the first error in the chain that provides them.
func Describe(err error) types.JobError {
	if err == nil {
		return types.JobError{Message: "unknown error"}
	}
	doc := types.JobError{Message: err.Error()}
	var c coder
	if errors.As(err, &c) {
		doc.Code = c.Code()
	}
	var s stacker
	if errors.As(err, &s) {
		doc.Stack = s.Stack()
	}
	return doc
}

// isRetryable reports transient write conflicts that a fresh transaction can
// resolve: Postgres serialization failures, deadlocks and lock timeouts, and
// sqlite's busy/locked errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
