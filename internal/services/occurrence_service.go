package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safereport/safereport/internal/database"
	"github.com/safereport/safereport/internal/notify"

	"gorm.io/gorm"
)

// OccurrenceService implements the occurrence review workflow: intake,
// referral, per-department response, thread messages and administrative
// close. Every mutation runs its writes and the status recompute in one
// transaction; lifecycle events are published only after the transaction
// committed, so a notification failure can never roll back a state change.
type OccurrenceService struct {
	db        *gorm.DB
	publisher notify.Publisher
	now       func() time.Time
}

// NewOccurrenceService creates a new occurrence service
func NewOccurrenceService(db *gorm.DB, publisher notify.Publisher) *OccurrenceService {
	return &OccurrenceService{
		db:        db,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateOccurrenceInput holds the intake fields for a new occurrence.
// ReporterID is nil for anonymous reports.
type CreateOccurrenceInput struct {
	Description         string
	MedicalRecordNumber string
	Location            string
	OccurredAt          time.Time
	ReporterID          *uint
	IncidentTypeID      uint
}

// CreateOccurrence records a new occurrence with status OPEN and an
// auto-assigned year-scoped number, then publishes the created event.
func (s *OccurrenceService) CreateOccurrence(ctx context.Context, input CreateOccurrenceInput) (*database.Occurrence, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, newValidationError("description", "is required")
	}
	if input.OccurredAt.IsZero() {
		return nil, newValidationError("occurred_at", "is required")
	}

	var incidentType database.IncidentType
	if err := s.db.First(&incidentType, input.IncidentTypeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newValidationError("incident_type_id", "references an unknown incident type")
		}
		return nil, fmt.Errorf("failed to load incident type: %w", err)
	}
	if input.ReporterID != nil {
		var reporter database.User
		if err := s.db.First(&reporter, *input.ReporterID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, newValidationError("reporter_id", "references an unknown user")
			}
			return nil, fmt.Errorf("failed to load reporter: %w", err)
		}
	}

	var occurrence *database.Occurrence

	// The number is max existing sequence + 1 computed inside the insert
	// transaction; the unique index on number rejects the loser of a
	// concurrent race, which we absorb with one retry.
	const attempts = 2
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		occurrence = nil
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, numberErr := database.NextOccurrenceNumber(tx, s.now())
			if numberErr != nil {
				return numberErr
			}
			record := &database.Occurrence{
				UUID:                uuid.NewString(),
				Number:              number,
				Description:         input.Description,
				MedicalRecordNumber: input.MedicalRecordNumber,
				Location:            input.Location,
				OccurredAt:          input.OccurredAt,
				ReporterID:          input.ReporterID,
				Status:              database.StatusOpen,
				IncidentTypeID:      input.IncidentTypeID,
			}
			if createErr := tx.Create(record).Error; createErr != nil {
				return createErr
			}
			occurrence = record
			return nil
		})
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create occurrence: %w", err)
	}

	s.publish(ctx, notify.Event{
		Kind:       notify.EventOccurrenceCreated,
		Occurrence: *occurrence,
	})
	return occurrence, nil
}

// ReferToDepartments routes the occurrence to each listed department,
// creating the assignment or resetting the existing one (a fresh referral
// round clears the department's completion), recomputes the status and
// publishes the referred event.
func (s *OccurrenceService) ReferToDepartments(ctx context.Context, occurrenceID uint, departmentIDs []uint, message string) ([]database.OccurrenceAssignment, error) {
	departmentIDs = dedupeIDs(departmentIDs)
	if len(departmentIDs) == 0 {
		return nil, newValidationError("department_ids", "must not be empty")
	}

	var occurrence database.Occurrence
	var assignments []database.OccurrenceAssignment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&occurrence, occurrenceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if occurrence.IsClosed() {
			return ErrOccurrenceClosed
		}

		var departmentCount int64
		if err := tx.Model(&database.Department{}).Where("id IN ?", departmentIDs).Count(&departmentCount).Error; err != nil {
			return err
		}
		if departmentCount != int64(len(departmentIDs)) {
			return ErrNotFound
		}

		referredAt := s.now()
		for _, departmentID := range departmentIDs {
			assignment, err := s.upsertAssignment(tx, occurrence.ID, departmentID, message, referredAt)
			if err != nil {
				return err
			}
			assignments = append(assignments, *assignment)
		}

		return recomputeStatus(tx, &occurrence)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Kind:          notify.EventOccurrenceReferred,
		Occurrence:    occurrence,
		DepartmentIDs: departmentIDs,
	})
	return assignments, nil
}

// upsertAssignment creates the (occurrence, department) assignment or resets
// the existing row for a new referral round: completion cleared, referral
// message replaced, referred_at bumped.
func (s *OccurrenceService) upsertAssignment(tx *gorm.DB, occurrenceID, departmentID uint, message string, referredAt time.Time) (*database.OccurrenceAssignment, error) {
	var assignment database.OccurrenceAssignment
	err := tx.Where("occurrence_id = ? AND department_id = ?", occurrenceID, departmentID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		assignment = database.OccurrenceAssignment{
			OccurrenceID: occurrenceID,
			DepartmentID: departmentID,
			Message:      message,
			ReferredAt:   referredAt,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return nil, fmt.Errorf("failed to create assignment: %w", err)
		}
		return &assignment, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"message":      message,
		"referred_at":  referredAt,
		"completed_at": nil,
	}
	if err := tx.Model(&assignment).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to reset assignment: %w", err)
	}
	assignment.Message = message
	assignment.ReferredAt = referredAt
	assignment.CompletedAt = nil
	return &assignment, nil
}

// RecordDepartmentResponse stores a department's formal response on its
// assignment, stamps the completion time, recomputes the status and
// publishes the responded event.
func (s *OccurrenceService) RecordDepartmentResponse(ctx context.Context, assignmentID uint, rootCause, actionPlan string) error {
	if strings.TrimSpace(rootCause) == "" {
		return newValidationError("root_cause", "is required")
	}

	var occurrence database.Occurrence
	var assignment database.OccurrenceAssignment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&assignment, assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.First(&occurrence, assignment.OccurrenceID).Error; err != nil {
			return err
		}
		if occurrence.IsClosed() {
			return ErrOccurrenceClosed
		}

		completedAt := s.now()
		updates := map[string]interface{}{
			"root_cause":   rootCause,
			"action_plan":  actionPlan,
			"completed_at": completedAt,
		}
		if err := tx.Model(&assignment).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to record department response: %w", err)
		}
		assignment.RootCause = rootCause
		assignment.ActionPlan = actionPlan
		assignment.CompletedAt = &completedAt

		return recomputeStatus(tx, &occurrence)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, notify.Event{
		Kind:         notify.EventDepartmentResponded,
		Occurrence:   occurrence,
		AssignmentID: assignment.ID,
		MessageText:  rootCause,
	})
	return nil
}

// PostThreadMessage appends a group-visible message to the occurrence's
// thread. A message from a department member counts as that department's
// answer, so the status is recomputed. CLOSED occurrences reject messages.
func (s *OccurrenceService) PostThreadMessage(ctx context.Context, occurrenceID, senderID uint, text string) (*database.OccurrenceMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newValidationError("text", "is required")
	}

	var occurrence database.Occurrence
	var message *database.OccurrenceMessage

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&occurrence, occurrenceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if occurrence.IsClosed() {
			return ErrOccurrenceClosed
		}

		var sender database.User
		if err := tx.First(&sender, senderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		record := &database.OccurrenceMessage{
			OccurrenceID: occurrence.ID,
			SenderID:     sender.ID,
			Body:         text,
			CreatedAt:    s.now(),
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create thread message: %w", err)
		}
		message = record

		return recomputeStatus(tx, &occurrence)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, notify.Event{
		Kind:        notify.EventThreadMessagePosted,
		Occurrence:  occurrence,
		SenderID:    senderID,
		MessageText: text,
	})
	return message, nil
}

// ResolveOccurrence is the administrative close: it forces the terminal
// CLOSED status regardless of assignment state. Resolving an already closed
// occurrence is rejected.
func (s *OccurrenceService) ResolveOccurrence(ctx context.Context, occurrenceID uint) error {
	var occurrence database.Occurrence

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&occurrence, occurrenceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if occurrence.IsClosed() {
			return ErrOccurrenceClosed
		}
		if err := tx.Model(&occurrence).Update("status", database.StatusClosed).Error; err != nil {
			return fmt.Errorf("failed to close occurrence: %w", err)
		}
		occurrence.Status = database.StatusClosed
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, notify.Event{
		Kind:       notify.EventOccurrenceResolved,
		Occurrence: occurrence,
	})
	return nil
}

// GetOccurrence returns an occurrence with its incident type and assignments
func (s *OccurrenceService) GetOccurrence(occurrenceID uint) (*database.Occurrence, error) {
	var occurrence database.Occurrence
	err := s.db.Preload("IncidentType").Preload("Assignments").First(&occurrence, occurrenceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &occurrence, nil
}

// GetOccurrenceByUUID returns an occurrence by its opaque identifier
func (s *OccurrenceService) GetOccurrenceByUUID(occurrenceUUID string) (*database.Occurrence, error) {
	var occurrence database.Occurrence
	err := s.db.Preload("IncidentType").Preload("Assignments").
		Where("uuid = ?", occurrenceUUID).First(&occurrence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &occurrence, nil
}

// AssignmentStates returns the occurrence's assignments with their derived
// answered flags, for read surfaces that show completion state.
func (s *OccurrenceService) AssignmentStates(occurrenceID uint) ([]AssignmentState, error) {
	var occurrence database.Occurrence
	if err := s.db.First(&occurrence, occurrenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return assignmentStates(s.db, occurrenceID)
}

// ListOccurrences returns occurrences ordered newest first, with limit and
// offset for paging.
func (s *OccurrenceService) ListOccurrences(limit, offset int) ([]database.Occurrence, int64, error) {
	var total int64
	if err := s.db.Model(&database.Occurrence{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var occurrences []database.Occurrence
	err := s.db.Preload("IncidentType").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&occurrences).Error
	if err != nil {
		return nil, 0, err
	}
	return occurrences, total, nil
}

// publish hands the event to the targeting engine. The publisher is
// best-effort and may be absent in tests.
func (s *OccurrenceService) publish(ctx context.Context, event notify.Event) {
	if s.publisher == nil {
		log.Printf("services: no publisher configured, dropping %s event for %s", event.Kind, event.Occurrence.Number)
		return
	}
	s.publisher.Publish(ctx, event)
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			result = append(result, id)
		}
	}
	return result
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either backend (postgres at runtime, sqlite in tests).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
