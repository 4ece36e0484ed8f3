package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestParentForeignKeySQL(t *testing.T) {
	tests := []struct {
		parent string
		want   string
	}{
		{"tblhosting", `REFERENCES "tblhosting"(id)`},
		{"billing.tblhosting", `REFERENCES "billing"."tblhosting"(id)`},
		{`odd"name`, `REFERENCES "odd""name"(id)`},
	}
	for _, tt := range tests {
		stmt, err := parentForeignKeySQL(tt.parent)
		if err != nil {
			t.Fatalf("parentForeignKeySQL(%q): %v", tt.parent, err)
		}
		if !strings.Contains(stmt, tt.want) {
			t.Errorf("stmt = %s, want it to contain %s", stmt, tt.want)
		}
		if !strings.Contains(stmt, "ON DELETE CASCADE") {
			t.Errorf("stmt = %s, want ON DELETE CASCADE", stmt)
		}
	}

	for _, bad := range []string{"", "  ", "billing.", ".x"} {
		if _, err := parentForeignKeySQL(bad); err == nil {
			t.Errorf("parentForeignKeySQL(%q) should fail", bad)
		}
	}
}

func TestHasPGCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgUniqueViolation})
	if !hasPGCode(err, pgUniqueViolation) {
		t.Error("expected unique violation")
	}
	if hasPGCode(err, pgDuplicateObject) {
		t.Error("did not expect duplicate object")
	}
	if hasPGCode(errors.New("plain"), pgUniqueViolation) {
		t.Error("plain errors carry no code")
	}
}
