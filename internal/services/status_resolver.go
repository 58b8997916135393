package services

import (
	"fmt"
	"time"

	"github.com/safereport/safereport/internal/database"

	"gorm.io/gorm"
)

// DeriveStatus is the pure transition rule: given the number of assignments
// and how many of them are answered, it returns the occurrence's lifecycle
// status. CLOSED is never derived here; it is only reached through the
// administrative resolve action.
func DeriveStatus(total, answered int) database.OccurrenceStatus {
	switch {
	case total == 0:
		return database.StatusOpen
	case answered == total:
		return database.StatusAnswered
	case answered == 0:
		return database.StatusAssigned
	default:
		return database.StatusAnsweredPartially
	}
}

// AssignmentState pairs an assignment with its derived answered flag
type AssignmentState struct {
	Assignment database.OccurrenceAssignment
	Answered   bool
}

// assignmentStates loads the occurrence's assignments and derives the
// answered flag for each: a department has answered when its formal response
// is recorded (completed_at set) or when one of its members posted a thread
// message at or after the assignment's latest referral. The time scope makes
// re-referral reset a department even if it had spoken up before.
func assignmentStates(tx *gorm.DB, occurrenceID uint) ([]AssignmentState, error) {
	var assignments []database.OccurrenceAssignment
	err := tx.Where("occurrence_id = ?", occurrenceID).
		Order("id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	lastMessageAt, err := lastMessageByDepartment(tx, occurrenceID)
	if err != nil {
		return nil, err
	}

	states := make([]AssignmentState, 0, len(assignments))
	for _, assignment := range assignments {
		answered := assignment.Completed()
		if !answered {
			if at, ok := lastMessageAt[assignment.DepartmentID]; ok && !at.Before(assignment.ReferredAt) {
				answered = true
			}
		}
		states = append(states, AssignmentState{Assignment: assignment, Answered: answered})
	}
	return states, nil
}

// lastMessageByDepartment returns, per department, the creation time of the
// latest thread message authored by one of its members.
func lastMessageByDepartment(tx *gorm.DB, occurrenceID uint) (map[uint]time.Time, error) {
	var messages []database.OccurrenceMessage
	err := tx.Where("occurrence_id = ?", occurrenceID).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load thread messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	senderIDs := make([]uint, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}
	var senders []database.User
	if err := tx.Where("id IN ?", senderIDs).Find(&senders).Error; err != nil {
		return nil, fmt.Errorf("failed to load message senders: %w", err)
	}
	departmentBySender := make(map[uint]uint, len(senders))
	for _, u := range senders {
		if u.DepartmentID != nil {
			departmentBySender[u.ID] = *u.DepartmentID
		}
	}

	result := make(map[uint]time.Time)
	for _, m := range messages {
		departmentID, ok := departmentBySender[m.SenderID]
		if !ok {
			continue
		}
		if at, seen := result[departmentID]; !seen || m.CreatedAt.After(at) {
			result[departmentID] = m.CreatedAt
		}
	}
	return result, nil
}

// recomputeStatus re-derives the occurrence's status from its assignment set
// and persists it when it changed. It must run inside the same transaction
// as the assignment mutation that triggered it. A CLOSED occurrence is
// terminal and is never recomputed.
func recomputeStatus(tx *gorm.DB, occurrence *database.Occurrence) error {
	if occurrence.IsClosed() {
		return nil
	}

	states, err := assignmentStates(tx, occurrence.ID)
	if err != nil {
		return err
	}
	answered := 0
	for _, state := range states {
		if state.Answered {
			answered++
		}
	}

	status := DeriveStatus(len(states), answered)
	if status == occurrence.Status {
		return nil
	}
	if err := tx.Model(occurrence).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update occurrence status: %w", err)
	}
	occurrence.Status = status
	return nil
}
