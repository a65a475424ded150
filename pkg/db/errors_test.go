package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "pg code matches constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_cart_sessions_live_identity"}, constraint: "ux_cart_sessions_live_identity", want: true},
		{name: "pg code other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "cart_sessions_pkey"}, constraint: "ux_cart_sessions_live_identity", want: false},
		{name: "pg other code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "wrapped pg", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "message fallback", err: errors.New(`duplicate key value violates unique constraint "ux_cart_sessions_live_identity"`), constraint: "ux_cart_sessions_live_identity", want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: cart_sessions.identity"), constraint: "ux_cart_sessions_live_identity", want: true},
		{name: "pq code", err: &pq.Error{Code: "23505", Constraint: "ux_cart_sessions_live_identity"}, constraint: "ux_cart_sessions_live_identity", want: true},
		{name: "sqlite typed", err: fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), want: true},
		{name: "sqlite not null", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, want: false},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
