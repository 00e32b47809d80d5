package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "products_pkey",
		TableName:      "products",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeConflict, fmt.Errorf("insert product: %w", pgErr), "product exists")

	dump := Dump(err)
	if dump.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "products_pkey" || dump.PGTable != "products" {
		t.Fatalf("unexpected pg fields %+v", dump)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected error chain, got %v", dump.Chain)
	}

	fields := dump.Fields()
	if fields["pg_code"] != "23505" {
		t.Fatalf("expected pg_code in fields, got %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("did not expect empty pg_column in fields")
	}
}

func TestDumpNil(t *testing.T) {
	if dump := Dump(nil); dump.TopMessage != "" || dump.Chain != nil {
		t.Fatalf("expected empty dump, got %+v", dump)
	}
}
