package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, isStr := value.(string); isStr {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// IDList stores a set of record IDs as a JSON array column.
// Used for notification preference interest sets and notification
// entity references.
type IDList []uint

// Scan implements the sql.Scanner interface
func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = IDList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, isStr := value.(string); isStr {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, l)
}

// Value implements the driver.Valuer interface
func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(IDList{})
	}
	return json.Marshal(l)
}

// Contains reports whether id is present in the list.
func (l IDList) Contains(id uint) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// Severity is a classification level attached to incident type nodes.
// Rank orders severities from least (1) to most serious.
type Severity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Rank      int       `gorm:"not null" json:"rank"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IncidentType is a node in the incident classification tree. Each node
// carries its own severity; children do not inherit the parent's.
type IncidentType struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	ParentID   *uint     `gorm:"index" json:"parent_id"`
	SeverityID uint      `gorm:"not null;index" json:"severity_id"`
	Severity   Severity  `gorm:"foreignKey:SeverityID" json:"severity,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Department is an organizational unit that can be a referral target
type Department struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRole identifies a user's role in the review workflow
type UserRole string

const (
	RoleStaff            UserRole = "staff"
	RoleManager          UserRole = "manager"
	RoleQualityAssurance UserRole = "quality_assurance"
	RoleAdministrator    UserRole = "administrator"
)

// OversightRoles are the roles with cross-department visibility, used as a
// notification candidate pool independent of department membership.
var OversightRoles = []UserRole{RoleManager, RoleQualityAssurance, RoleAdministrator}

// IsOversight reports whether the role has cross-department visibility
func (r UserRole) IsOversight() bool {
	for _, role := range OversightRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User represents a workflow participant
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         string    `gorm:"uniqueIndex;not null" json:"uuid"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255" json:"email"`
	Mobile       string    `gorm:"size:32" json:"mobile"`
	Role         UserRole  `gorm:"type:varchar(50);not null;default:'staff';index" json:"role"`
	DepartmentID *uint     `gorm:"index" json:"department_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OccurrenceStatus represents the lifecycle status of an occurrence
type OccurrenceStatus string

const (
	StatusOpen              OccurrenceStatus = "OPEN"
	StatusAssigned          OccurrenceStatus = "ASSIGNED"
	StatusAnswered          OccurrenceStatus = "ANSWERED"
	StatusAnsweredPartially OccurrenceStatus = "ANSWERED_PARTIALLY"
	StatusClosed            OccurrenceStatus = "CLOSED"
)

// Occurrence is a reported workplace-violence case tracked through the
// review workflow. Status is written only by the workflow service: either
// the resolver's output after an assignment mutation or the administrative
// close.
type Occurrence struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	UUID                string           `gorm:"uniqueIndex;not null" json:"uuid"`
	Number              string           `gorm:"uniqueIndex;size:16;not null" json:"number"`
	Description         string           `gorm:"type:text;not null" json:"description"`
	MedicalRecordNumber string           `gorm:"size:64" json:"medical_record_number"`
	Location            string           `gorm:"size:255" json:"location"`
	OccurredAt          time.Time        `gorm:"not null" json:"occurred_at"`
	ReporterID          *uint            `gorm:"index" json:"reporter_id"`
	Status              OccurrenceStatus `gorm:"type:varchar(32);not null;default:'OPEN';index" json:"status"`
	IncidentTypeID      uint             `gorm:"not null;index" json:"incident_type_id"`
	IncidentType        IncidentType     `gorm:"foreignKey:IncidentTypeID" json:"incident_type,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`

	Assignments []OccurrenceAssignment `gorm:"foreignKey:OccurrenceID" json:"assignments,omitempty"`
}

// IsClosed reports whether the occurrence reached its terminal status
func (o *Occurrence) IsClosed() bool {
	return o.Status == StatusClosed
}

// OccurrenceAssignment is the referral of one occurrence to one department.
// At most one row exists per (occurrence, department); re-referral updates
// the row in place, clearing completion and bumping ReferredAt.
type OccurrenceAssignment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	OccurrenceID uint       `gorm:"not null;uniqueIndex:idx_occurrence_department" json:"occurrence_id"`
	DepartmentID uint       `gorm:"not null;uniqueIndex:idx_occurrence_department;index" json:"department_id"`
	Department   Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Message      string     `gorm:"type:text" json:"message"`
	RootCause    string     `gorm:"type:text" json:"root_cause"`
	ActionPlan   string     `gorm:"type:text" json:"action_plan"`
	ReferredAt   time.Time  `gorm:"not null" json:"referred_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Completed reports whether the department submitted its formal response
func (a *OccurrenceAssignment) Completed() bool {
	return a.CompletedAt != nil
}

// OccurrenceMessage is a group-visible entry in an occurrence's thread
type OccurrenceMessage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OccurrenceID uint      `gorm:"not null;index" json:"occurrence_id"`
	SenderID     uint      `gorm:"not null;index" json:"sender_id"`
	Sender       User      `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Body         string    `gorm:"type:text;not null" json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotificationChannel selects how a user wants to be reached
type NotificationChannel string

const (
	ChannelEmail  NotificationChannel = "EMAIL"
	ChannelMobile NotificationChannel = "MOBILE"
	ChannelBoth   NotificationChannel = "BOTH"
)

// NotificationPreference holds a user's opt-in notification settings.
// Empty interest sets match nothing on that axis: a preference fires only
// when the event's incident id is in IncidentTypeIDs or its severity id is
// in SeverityIDs.
type NotificationPreference struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	UserID          uint                `gorm:"uniqueIndex;not null" json:"user_id"`
	Enabled         bool                `gorm:"default:false" json:"enabled"`
	Channel         NotificationChannel `gorm:"type:varchar(16);not null;default:'EMAIL'" json:"channel"`
	IncidentTypeIDs IDList              `gorm:"type:jsonb" json:"incident_type_ids"`
	SeverityIDs     IDList              `gorm:"type:jsonb" json:"severity_ids"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// MatchesIncident reports whether the given top-level incident type id is in
// the user's interest set
func (p *NotificationPreference) MatchesIncident(incidentTypeID uint) bool {
	return p.IncidentTypeIDs.Contains(incidentTypeID)
}

// MatchesSeverity reports whether the given severity id is in the user's
// interest set
func (p *NotificationPreference) MatchesSeverity(severityID uint) bool {
	return p.SeverityIDs.Contains(severityID)
}

// Notification is one delivered notification for one recipient. Rows are
// append-only; only the Read flag is ever updated.
type Notification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         string    `gorm:"uniqueIndex;not null" json:"uuid"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Body         string    `gorm:"type:text" json:"body"`
	Kind         string    `gorm:"type:varchar(50);not null;index" json:"kind"`
	ReferenceIDs IDList    `gorm:"type:jsonb" json:"reference_ids"`
	Read         bool      `gorm:"default:false" json:"read"`
	Metadata     JSONB     `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}
