package db

import (
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("fresh database must not be dirty")
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
}

func TestSessionCRUD(t *testing.T) {
	db := newTestDB(t)

	offset := 120.0
	score := 0.87
	rec := SessionRecord{
		ID:               "s-1",
		CreatedAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		FPS:              30,
		OffsetMS:         &offset,
		CorrelationScore: &score,
		Notes:            "left knee, bench capture",
	}
	if err := db.InsertSession(rec); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	got, err := db.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if diff := cmp.Diff(rec, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}

	if err := db.InsertSession(SessionRecord{ID: "s-2", CreatedAt: time.Now(), FPS: 60}); err != nil {
		t.Fatal(err)
	}
	list, err := db.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(list))
	}

	if err := db.DeleteSession("s-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := db.GetSession("s-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSession after delete: err = %v, want ErrNoRows", err)
	}
	if err := db.DeleteSession("s-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("double delete: err = %v, want ErrNoRows", err)
	}
}

func TestSetSessionAlignment(t *testing.T) {
	db := newTestDB(t)

	if err := db.InsertSession(SessionRecord{ID: "s-1", CreatedAt: time.Now(), FPS: 30}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSessionAlignment("s-1", -40, 0.92); err != nil {
		t.Fatalf("SetSessionAlignment failed: %v", err)
	}

	got, err := db.GetSession("s-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.OffsetMS == nil || *got.OffsetMS != -40 {
		t.Errorf("OffsetMS = %v, want -40", got.OffsetMS)
	}
	if got.CorrelationScore == nil || *got.CorrelationScore != 0.92 {
		t.Errorf("CorrelationScore = %v, want 0.92", got.CorrelationScore)
	}

	if err := db.SetSessionAlignment("missing", 0, 0); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown session: err = %v, want ErrNoRows", err)
	}
}

func TestTrajectoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertSession(SessionRecord{ID: "s-1", CreatedAt: time.Now(), FPS: 30}); err != nil {
		t.Fatal(err)
	}

	raw := []pose.AngleSample{
		{TimestampMS: 0, AngleDeg: 10, Confidence: 0.9},
		{TimestampMS: 33.3, AngleDeg: math.NaN(), Confidence: math.NaN()},
		{TimestampMS: 66.6, AngleDeg: 14, Confidence: 0.8},
	}
	fused := []fusion.FrameAngle{
		{FrameIndex: 0, TimestampMS: 0, AngleDeg: 10},
		{FrameIndex: 1, TimestampMS: 33.3, AngleDeg: 11.5},
		{FrameIndex: 2, TimestampMS: 66.6, AngleDeg: 13.7},
	}

	if err := db.InsertTrajectory("s-1", pose.LeftKneeFlexion, raw, fused); err != nil {
		t.Fatalf("InsertTrajectory failed: %v", err)
	}

	rows, err := db.GetTrajectory("s-1", pose.LeftKneeFlexion)
	if err != nil {
		t.Fatalf("GetTrajectory failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].RawAngle != 10 || rows[0].FusedAngle != 10 {
		t.Errorf("row 0 = %+v, want raw/fused 10", rows[0])
	}
	if !math.IsNaN(rows[1].RawAngle) {
		t.Errorf("row 1 raw angle = %v, want NaN round-tripped through NULL", rows[1].RawAngle)
	}
	if rows[1].FusedAngle != 11.5 {
		t.Errorf("row 1 fused angle = %v, want 11.5", rows[1].FusedAngle)
	}

	// Other joints stay empty.
	other, err := db.GetTrajectory("s-1", pose.RightKneeFlexion)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("unexpected rows for unstored joint: %v", other)
	}
}

func TestInsertTrajectory_LengthMismatch(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertSession(SessionRecord{ID: "s-1", CreatedAt: time.Now(), FPS: 30}); err != nil {
		t.Fatal(err)
	}
	err := db.InsertTrajectory("s-1", pose.LeftKneeFlexion,
		make([]pose.AngleSample, 2), make([]fusion.FrameAngle, 3))
	if err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestSummaryRoundTripAndCascade(t *testing.T) {
	db := newTestDB(t)
	if err := db.InsertSession(SessionRecord{ID: "s-1", CreatedAt: time.Now(), FPS: 30}); err != nil {
		t.Fatal(err)
	}

	want := pose.SessionSummary{
		TotalFrames:           120,
		FPS:                   30, // joined in from the session row
		DurationSeconds:       4,
		LeftKneeROM:           55,
		RightKneeROM:          52,
		LeftKneeMaxFlexion:    95,
		RightKneeMaxFlexion:   90,
		LeftKneeMinFlexion:    40,
		RightKneeMinFlexion:   38,
		LeftKneePeakVelocity:  130,
		RightKneePeakVelocity: 125,
		MeanAsymmetry:         3.2,
		MaxAsymmetry:          8.5,
		LeftKneeMaxValgus:     4.1,
		RightKneeMaxValgus:    3.9,
	}
	if err := db.InsertSummary("s-1", want); err != nil {
		t.Fatalf("InsertSummary failed: %v", err)
	}

	got, err := db.GetSummary("s-1")
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	// Deleting the session cascades to the summary.
	if err := db.DeleteSession("s-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSummary("s-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetSummary after cascade: err = %v, want ErrNoRows", err)
	}
}
