package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-sunat-api/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestWrapTransient_SerializacionYDeadlock(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := wrapTransient("update document", &pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, domain.ErrTransient, code)
	}
	err := wrapTransient("update document", errors.New("boom"))
	assert.NotErrorIs(t, err, domain.ErrTransient)
	assert.Contains(t, err.Error(), "update document")
}

func TestIsNoRows(t *testing.T) {
	assert.True(t, isNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
	assert.False(t, isNoRows(errors.New("otro")))
}

func TestToJSON_NilYRawVacioSonNULL(t *testing.T) {
	b, err := toJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = toJSON(json.RawMessage(nil))
	require.NoError(t, err)
	assert.Nil(t, b)

	var ptr *struct{ A int }
	b, err = toJSON(ptr)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = toJSON(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	var out map[string]int
	require.NoError(t, fromJSON(b, &out))
	assert.Equal(t, 1, out["a"])
	assert.NoError(t, fromJSON(nil, &out))
}

func TestDatabaseURLWithIPv4_HostIPv4SeMantiene(t *testing.T) {
	got := databaseURLWithIPv4("postgres://u:p@127.0.0.1/facturacion?sslmode=disable")
	assert.Equal(t, "postgres://u:p@127.0.0.1:5432/facturacion?sslmode=disable", got)

	// IPv6 literal: no se reescribe
	raw := "postgres://u:p@[::1]:5433/db"
	assert.Equal(t, raw, databaseURLWithIPv4(raw))
}
