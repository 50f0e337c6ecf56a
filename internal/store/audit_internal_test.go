package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shelfmind/internal/domain"
)

func TestDecayAuditRejectsUpdateAndDelete(t *testing.T) {
	st, err := OpenPath(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err = st.Write(ctx, func(tx *Tx) error {
		_, err := tx.CreateMasteryEntity(ctx, domain.MasteryEntity{Key: "skill:sql", Mastery: 50, LastTouchedAt: now},
			domain.CauseReview, "")
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, stmt := range []string{
		"UPDATE decay_audit SET new_value = 1",
		"DELETE FROM decay_audit",
	} {
		err := st.Write(ctx, func(tx *Tx) error {
			_, err := tx.tx.ExecContext(ctx, stmt)
			return err
		})
		if err == nil {
			t.Fatalf("expected %q to be refused", stmt)
		}
	}

	_ = st.Read(ctx, func(tx *Tx) error {
		rows, err := tx.MasteryHistory(ctx, "skill:sql", 0)
		if err != nil || len(rows) != 1 || rows[0].NewValue != 50 {
			t.Fatalf("audit trail changed: %#v %v", rows, err)
		}
		return nil
	})
}

func TestTimestampsSortLexically(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 5, time.UTC)
	b := time.Date(2024, 1, 1, 0, 0, 0, 40, time.UTC)
	if !(formatTime(a) < formatTime(b)) {
		t.Fatalf("%s should sort before %s", formatTime(a), formatTime(b))
	}
	parsed, err := parseTime(formatTime(b))
	if err != nil || !parsed.Equal(b) {
		t.Fatalf("round trip %v %v", parsed, err)
	}
}
