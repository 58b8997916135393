// Package testhelpers provides additional data builders for testing
package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safereport/safereport/internal/database"

	"gorm.io/gorm"
)

// ========================================
// Department Builder
// ========================================

// CreateDepartment inserts a department with the given name
func CreateDepartment(t *testing.T, db *gorm.DB, name string) *database.Department {
	t.Helper()
	dept := &database.Department{Name: name}
	if err := db.Create(dept).Error; err != nil {
		t.Fatalf("failed to create department %q: %v", name, err)
	}
	return dept
}

// ========================================
// User Builder
// ========================================

// UserBuilder builds User instances for testing
type UserBuilder struct {
	user database.User
}

// NewUserBuilder creates a new user builder with defaults
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		user: database.User{
			UUID:   uuid.NewString(),
			Name:   "Test User",
			Email:  "test.user@example.org",
			Mobile: "5551234567",
			Role:   database.RoleStaff,
		},
	}
}

// WithName sets the user name
func (b *UserBuilder) WithName(name string) *UserBuilder {
	b.user.Name = name
	return b
}

// WithEmail sets the email address
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

// WithMobile sets the mobile number
func (b *UserBuilder) WithMobile(mobile string) *UserBuilder {
	b.user.Mobile = mobile
	return b
}

// WithRole sets the user role
func (b *UserBuilder) WithRole(role database.UserRole) *UserBuilder {
	b.user.Role = role
	return b
}

// InDepartment assigns the user to a department
func (b *UserBuilder) InDepartment(departmentID uint) *UserBuilder {
	b.user.DepartmentID = &departmentID
	return b
}

// Create inserts the user and fails the test on error
func (b *UserBuilder) Create(t *testing.T, db *gorm.DB) *database.User {
	t.Helper()
	user := b.user
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &user
}

// ========================================
// Preference Builder
// ========================================

// PreferenceBuilder builds NotificationPreference instances for testing
type PreferenceBuilder struct {
	pref database.NotificationPreference
}

// NewPreferenceBuilder creates an enabled email preference with empty
// interest sets
func NewPreferenceBuilder(userID uint) *PreferenceBuilder {
	return &PreferenceBuilder{
		pref: database.NotificationPreference{
			UserID:          userID,
			Enabled:         true,
			Channel:         database.ChannelEmail,
			IncidentTypeIDs: database.IDList{},
			SeverityIDs:     database.IDList{},
		},
	}
}

// Disabled marks the preference as disabled
func (b *PreferenceBuilder) Disabled() *PreferenceBuilder {
	b.pref.Enabled = false
	return b
}

// WithChannel sets the delivery channel
func (b *PreferenceBuilder) WithChannel(channel database.NotificationChannel) *PreferenceBuilder {
	b.pref.Channel = channel
	return b
}

// WithIncidentTypes sets the incident-type interest set
func (b *PreferenceBuilder) WithIncidentTypes(ids ...uint) *PreferenceBuilder {
	b.pref.IncidentTypeIDs = database.IDList(ids)
	return b
}

// WithSeverities sets the severity interest set
func (b *PreferenceBuilder) WithSeverities(ids ...uint) *PreferenceBuilder {
	b.pref.SeverityIDs = database.IDList(ids)
	return b
}

// Create inserts the preference and fails the test on error
func (b *PreferenceBuilder) Create(t *testing.T, db *gorm.DB) *database.NotificationPreference {
	t.Helper()
	pref := b.pref
	if err := db.Create(&pref).Error; err != nil {
		t.Fatalf("failed to create notification preference: %v", err)
	}
	return &pref
}

// ========================================
// Occurrence Builder
// ========================================

// OccurrenceBuilder builds Occurrence instances for testing. It bypasses the
// workflow service, so tests can construct arbitrary lifecycle states
// directly.
type OccurrenceBuilder struct {
	occurrence database.Occurrence
}

// NewOccurrenceBuilder creates a new occurrence builder with defaults
func NewOccurrenceBuilder(number string, incidentTypeID uint) *OccurrenceBuilder {
	return &OccurrenceBuilder{
		occurrence: database.Occurrence{
			UUID:           uuid.NewString(),
			Number:         number,
			Description:    "Test occurrence",
			Location:       "Ward 3",
			OccurredAt:     time.Now().Add(-time.Hour),
			Status:         database.StatusOpen,
			IncidentTypeID: incidentTypeID,
		},
	}
}

// WithStatus sets the lifecycle status
func (b *OccurrenceBuilder) WithStatus(status database.OccurrenceStatus) *OccurrenceBuilder {
	b.occurrence.Status = status
	return b
}

// WithReporter sets the reporter
func (b *OccurrenceBuilder) WithReporter(userID uint) *OccurrenceBuilder {
	b.occurrence.ReporterID = &userID
	return b
}

// WithDescription sets the description
func (b *OccurrenceBuilder) WithDescription(description string) *OccurrenceBuilder {
	b.occurrence.Description = description
	return b
}

// Create inserts the occurrence and fails the test on error
func (b *OccurrenceBuilder) Create(t *testing.T, db *gorm.DB) *database.Occurrence {
	t.Helper()
	occurrence := b.occurrence
	if err := db.Create(&occurrence).Error; err != nil {
		t.Fatalf("failed to create occurrence: %v", err)
	}
	return &occurrence
}

// CreateAssignment inserts an assignment row directly
func CreateAssignment(t *testing.T, db *gorm.DB, occurrenceID, departmentID uint, completedAt *time.Time) *database.OccurrenceAssignment {
	t.Helper()
	assignment := &database.OccurrenceAssignment{
		OccurrenceID: occurrenceID,
		DepartmentID: departmentID,
		ReferredAt:   time.Now().Add(-time.Minute),
		CompletedAt:  completedAt,
	}
	if err := db.Create(assignment).Error; err != nil {
		t.Fatalf("failed to create assignment: %v", err)
	}
	return assignment
}
