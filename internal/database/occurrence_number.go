package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// occurrenceNumberPrefix is the fixed prefix of every occurrence number.
// The full format is OCC<2-digit-year>-<4-digit-sequence> and is a
// persisted, externally visible string.
const occurrenceNumberPrefix = "OCC"

// FormatOccurrenceNumber renders an occurrence number for the given year
// and sequence, e.g. FormatOccurrenceNumber(2025, 7) == "OCC25-0007".
func FormatOccurrenceNumber(year int, seq int) string {
	return fmt.Sprintf("%s%02d-%04d", occurrenceNumberPrefix, year%100, seq)
}

// ParseOccurrenceSequence extracts the numeric sequence from an occurrence
// number with the given year prefix. Numbers from other years or with a
// malformed tail yield ok == false.
func ParseOccurrenceSequence(number, yearPrefix string) (int, bool) {
	if !strings.HasPrefix(number, yearPrefix) {
		return 0, false
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(number, yearPrefix))
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// NextOccurrenceNumber computes the next occurrence number for the year of
// the given time: one past the maximum existing sequence for that year's
// prefix, or 0001 when the year has no occurrences yet. Sequences are never
// reused even when earlier occurrences were deleted, because deletions
// cannot lower the surviving maximum.
//
// Callers must invoke this inside the same transaction as the occurrence
// insert; the unique index on the number column rejects the loser of a
// concurrent race.
func NextOccurrenceNumber(tx *gorm.DB, now time.Time) (string, error) {
	yearPrefix := fmt.Sprintf("%s%02d-", occurrenceNumberPrefix, now.Year()%100)

	var numbers []string
	err := tx.Model(&Occurrence{}).
		Where("number LIKE ?", yearPrefix+"%").
		Pluck("number", &numbers).Error
	if err != nil {
		return "", fmt.Errorf("failed to query occurrence numbers: %w", err)
	}

	maxSeq := 0
	for _, n := range numbers {
		if seq, ok := ParseOccurrenceSequence(n, yearPrefix); ok && seq > maxSeq {
			maxSeq = seq
		}
	}

	return FormatOccurrenceNumber(now.Year(), maxSeq+1), nil
}
