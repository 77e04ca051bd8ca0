package core

import (
	"database/sql"
	"testing"

	"github.com/pkg/errors"
)

func TestNewStorageError(t *testing.T) {
	if err := NewStorageError("noop", nil); err != nil {
		t.Errorf("NewStorageError(nil) = %v, want nil", err)
	}

	err := errors.Wrap(NewStorageError("inserting transaction", errors.New("disk full")), "processing payment")
	if !IsStorageError(err) {
		t.Errorf("IsStorageError(%v) = false", err)
	}
	if IsShutdown(err) {
		t.Errorf("IsShutdown(%v) = true", err)
	}
	if want := "processing payment: storage: inserting transaction: disk full"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = errors.Wrap(NewStorageError("querying students", errors.Wrap(sql.ErrConnDone, "query")), "listing")
	if !IsShutdown(err) || IsStorageError(err) {
		t.Errorf("closed connection should be a shutdown error, got %v", err)
	}
}
