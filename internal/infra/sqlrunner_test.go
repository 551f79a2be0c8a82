package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("\n--sql 0b6a5c1e-3d1f-4c51-9c7e-2b7d6f1a9e10\nselect 1;\n")
	if err != nil {
		t.Fatalf("extractMarker() unexpected error: %v", err)
	}
	if marker != "0b6a5c1e-3d1f-4c51-9c7e-2b7d6f1a9e10" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestExtractMarkerRejectsMissingMarker(t *testing.T) {
	for _, q := range []string{"", "select 1;", "--sql not-a-uuid\nselect 1;"} {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("extractMarker(%q) expected error", q)
		}
	}
}

func TestErrorClassifiers(t *testing.T) {
	if !IsNoRows(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)) {
		t.Fatalf("IsNoRows should see wrapped ErrNoRows")
	}
	unique := &pgconn.PgError{Code: UniqueViolation}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", unique)) {
		t.Fatalf("IsUniqueViolation should detect 23505")
	}
	if IsUniqueViolation(errors.New("boom")) {
		t.Fatalf("IsUniqueViolation false positive")
	}
}
