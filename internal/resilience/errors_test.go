package resilience

import (
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient_Nil(t *testing.T) {
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_PgConnectionException(t *testing.T) {
	assert.True(t, IsTransient(&pgconn.PgError{Code: "08006"})) // connection_failure
	assert.True(t, IsTransient(&pgconn.PgError{Code: "57P03"}))
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "42601"})) // syntax_error
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"})) // unique_violation
}

func TestIsTransient_Syscall(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(eris.Wrap(syscall.ECONNRESET, "ping")))
}

func TestIsTransient_StringHeuristics(t *testing.T) {
	assert.True(t, IsTransient(eris.New("dial tcp 127.0.0.1:5432: connection refused")))
	assert.True(t, IsTransient(eris.New("FATAL: the database system is starting up")))
	assert.True(t, IsTransient(eris.New("database is locked")))
	assert.False(t, IsTransient(eris.New("relation \"transactions\" does not exist")))
}
