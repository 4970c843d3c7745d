package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

func TestPostgresIntegration_ReserveBookingConflictsAndIdempotency(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("MEDPORTAL_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("MEDPORTAL_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "medportal_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("applyMigrations error: %v", err)
	}

	repo := NewScheduleRepo(db)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return date.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	shifts, err := repo.ReplaceWorkShifts(ctx, "d1", date, []domain.WorkShift{
		{StartTime: at(9, 0), EndTime: at(12, 0)},
		{StartTime: at(13, 0), EndTime: at(17, 0)},
	})
	if err != nil {
		t.Fatalf("ReplaceWorkShifts error: %v", err)
	}
	if len(shifts) != 2 {
		t.Fatalf("len(shifts) = %d, want 2", len(shifts))
	}
	got, err := repo.GetWorkShifts(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetWorkShifts error: %v", err)
	}
	if len(got) != 2 || !got[0].StartTime.Equal(at(9, 0)) {
		t.Fatalf("shifts = %+v, want two sorted shifts", got)
	}

	snap, err := repo.GetBookings(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetBookings error: %v", err)
	}
	if snap.Version != 0 || len(snap.Bookings) != 0 {
		t.Fatalf("snapshot = %+v, want empty at version 0", snap)
	}

	res := store.Reservation{
		ID:              uuid.MustParse("00000000-0000-0000-0000-000000000901"),
		DoctorID:        "d1",
		PatientID:       "p1",
		Date:            date,
		Start:           at(11, 0),
		End:             at(11, 30),
		SnapshotVersion: snap.Version,
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := res
			r.ID = uuid.Nil
			r.PatientID = fmt.Sprintf("p%d", i+1)
			_, errs[i] = repo.ReserveBooking(ctx, r)
		}(i)
	}
	wg.Wait()

	committed, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, store.ErrConflict):
			conflicted++
		default:
			t.Fatalf("ReserveBooking error: %v", err)
		}
	}
	if committed != 1 || conflicted != 1 {
		t.Fatalf("committed = %d conflicted = %d, want 1 and 1", committed, conflicted)
	}

	snap, err = repo.GetBookings(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetBookings error: %v", err)
	}
	if snap.Version != 1 || len(snap.Bookings) != 1 {
		t.Fatalf("snapshot = %+v, want one booking at version 1", snap)
	}

	res.Start, res.End = at(13, 0), at(13, 30)
	b, err := repo.ReserveBooking(ctx, res)
	if err != nil {
		t.Fatalf("ReserveBooking with stale non-overlapping snapshot error: %v", err)
	}
	replay, err := repo.ReserveBooking(ctx, res)
	if err != nil {
		t.Fatalf("ReserveBooking replay error: %v", err)
	}
	if replay.ID != b.ID {
		t.Fatalf("replay id = %s, want %s", replay.ID, b.ID)
	}

	res.PatientID = "someone-else"
	if _, err := repo.ReserveBooking(ctx, res); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
