package database

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupNumberTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func insertOccurrenceWithNumber(t *testing.T, db *gorm.DB, number string) {
	t.Helper()
	occ := Occurrence{
		UUID:           fmt.Sprintf("uuid-%s", number),
		Number:         number,
		Description:    "test",
		OccurredAt:     time.Now(),
		Status:         StatusOpen,
		IncidentTypeID: 1,
	}
	if err := db.Create(&occ).Error; err != nil {
		t.Fatalf("failed to insert occurrence %s: %v", number, err)
	}
}

func TestFormatOccurrenceNumber(t *testing.T) {
	if got := FormatOccurrenceNumber(2025, 7); got != "OCC25-0007" {
		t.Errorf("expected OCC25-0007, got %s", got)
	}
	if got := FormatOccurrenceNumber(2026, 1234); got != "OCC26-1234" {
		t.Errorf("expected OCC26-1234, got %s", got)
	}
}

func TestParseOccurrenceSequence(t *testing.T) {
	tests := []struct {
		number string
		prefix string
		seq    int
		ok     bool
	}{
		{"OCC25-0001", "OCC25-", 1, true},
		{"OCC25-0123", "OCC25-", 123, true},
		{"OCC24-0001", "OCC25-", 0, false},
		{"OCC25-abcd", "OCC25-", 0, false},
		{"garbage", "OCC25-", 0, false},
	}
	for _, tc := range tests {
		seq, ok := ParseOccurrenceSequence(tc.number, tc.prefix)
		if ok != tc.ok || seq != tc.seq {
			t.Errorf("ParseOccurrenceSequence(%q, %q) = (%d, %v), want (%d, %v)",
				tc.number, tc.prefix, seq, ok, tc.seq, tc.ok)
		}
	}
}

func TestNextOccurrenceNumber_FirstOfYear(t *testing.T) {
	db := setupNumberTestDB(t)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	number, err := NextOccurrenceNumber(db, now)
	if err != nil {
		t.Fatalf("NextOccurrenceNumber failed: %v", err)
	}
	if number != "OCC25-0001" {
		t.Errorf("expected OCC25-0001, got %s", number)
	}
}

func TestNextOccurrenceNumber_Increments(t *testing.T) {
	db := setupNumberTestDB(t)
	insertOccurrenceWithNumber(t, db, "OCC25-0001")
	insertOccurrenceWithNumber(t, db, "OCC25-0002")

	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	number, err := NextOccurrenceNumber(db, now)
	if err != nil {
		t.Fatalf("NextOccurrenceNumber failed: %v", err)
	}
	if number != "OCC25-0003" {
		t.Errorf("expected OCC25-0003, got %s", number)
	}
}

func TestNextOccurrenceNumber_SkipsDeletedSequences(t *testing.T) {
	db := setupNumberTestDB(t)
	insertOccurrenceWithNumber(t, db, "OCC25-0001")
	insertOccurrenceWithNumber(t, db, "OCC25-0005")

	now := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
	number, err := NextOccurrenceNumber(db, now)
	if err != nil {
		t.Fatalf("NextOccurrenceNumber failed: %v", err)
	}
	// Sequence continues from the surviving maximum, never reusing gaps.
	if number != "OCC25-0006" {
		t.Errorf("expected OCC25-0006, got %s", number)
	}
}

func TestNextOccurrenceNumber_YearBoundaryResets(t *testing.T) {
	db := setupNumberTestDB(t)
	insertOccurrenceWithNumber(t, db, "OCC25-0001")
	insertOccurrenceWithNumber(t, db, "OCC25-0002")

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	number, err := NextOccurrenceNumber(db, now)
	if err != nil {
		t.Fatalf("NextOccurrenceNumber failed: %v", err)
	}
	if number != "OCC26-0001" {
		t.Errorf("expected OCC26-0001, got %s", number)
	}
}

func TestNextOccurrenceNumber_IgnoresOtherYears(t *testing.T) {
	db := setupNumberTestDB(t)
	insertOccurrenceWithNumber(t, db, "OCC24-0042")
	insertOccurrenceWithNumber(t, db, "OCC25-0003")

	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	number, err := NextOccurrenceNumber(db, now)
	if err != nil {
		t.Fatalf("NextOccurrenceNumber failed: %v", err)
	}
	if number != "OCC25-0004" {
		t.Errorf("expected OCC25-0004, got %s", number)
	}
}
