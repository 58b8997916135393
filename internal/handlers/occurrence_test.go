package handlers

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/safereport/safereport/internal/database"
	"github.com/safereport/safereport/internal/notify"
	"github.com/safereport/safereport/internal/services"
	"github.com/safereport/safereport/internal/testhelpers"

	"gorm.io/gorm"
)

type nullPublisher struct{}

func (nullPublisher) Publish(context.Context, notify.Event) {}

func setupTestHandler(t *testing.T) (*gorm.DB, http.Handler) {
	t.Helper()
	db := testhelpers.SeedTestDB(t)
	service := services.NewOccurrenceService(db, nullPublisher{})
	occurrenceHandler := NewOccurrenceHandler(db, service)
	return db, NewHTTPHandler(occurrenceHandler).Handler()
}

func firstIncidentType(t *testing.T, db *gorm.DB) *database.IncidentType {
	t.Helper()
	var incidentType database.IncidentType
	if err := db.First(&incidentType).Error; err != nil {
		t.Fatalf("failed to load incident type: %v", err)
	}
	return &incidentType
}

func TestHandleHealth(t *testing.T) {
	_, handler := setupTestHandler(t)

	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/health", nil)
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusOK)

	var body map[string]string
	ctx.DecodeJSON(&body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestCreateOccurrence(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences", nil).
		WithJSONBody(map[string]interface{}{
			"description":      "Patient became aggressive during triage",
			"location":         "Emergency ward",
			"occurred_at":      time.Now().Add(-time.Hour).Format(time.RFC3339),
			"incident_type_id": incidentType.ID,
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusCreated)

	var created database.Occurrence
	ctx.DecodeJSON(&created)
	if created.Number == "" {
		t.Error("expected a generated occurrence number")
	}
	if created.Status != database.StatusOpen {
		t.Errorf("expected status %s, got %s", database.StatusOpen, created.Status)
	}
}

func TestCreateOccurrence_MissingDescription(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences", nil).
		WithJSONBody(map[string]interface{}{
			"occurred_at":      time.Now().Format(time.RFC3339),
			"incident_type_id": incidentType.ID,
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusUnprocessableEntity)
}

func TestCreateOccurrence_BadTimestamp(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences", nil).
		WithJSONBody(map[string]interface{}{
			"description":      "Aggression at reception",
			"occurred_at":      "yesterday afternoon",
			"incident_type_id": incidentType.ID,
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusUnprocessableEntity)
}

func TestGetOccurrence_NotFound(t *testing.T) {
	_, handler := setupTestHandler(t)

	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/api/occurrences/00000000-0000-0000-0000-000000000000", nil)
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusNotFound)
}

func TestGetOccurrence_ReturnsAssignmentStates(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	dept := testhelpers.CreateDepartment(t, db, "Security")
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0001", incidentType.ID).
		WithStatus(database.StatusAssigned).
		Create(t, db)
	completed := time.Now()
	testhelpers.CreateAssignment(t, db, occurrence.ID, dept.ID, &completed)

	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/api/occurrences/"+occurrence.UUID, nil)
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusOK)

	var body struct {
		Assignments []struct {
			DepartmentID uint `json:"department_id"`
			Answered     bool `json:"answered"`
		} `json:"assignments"`
	}
	ctx.DecodeJSON(&body)
	if len(body.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(body.Assignments))
	}
	if !body.Assignments[0].Answered {
		t.Error("completed assignment should report answered")
	}
}

func TestReferOccurrence(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	dept := testhelpers.CreateDepartment(t, db, "Nursing")
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0002", incidentType.ID).Create(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences/"+occurrence.UUID+"/referrals", nil).
		WithJSONBody(map[string]interface{}{
			"department_ids": []uint{dept.ID},
			"message":        "Please review staffing for the shift",
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusCreated)

	var reloaded database.Occurrence
	if err := db.First(&reloaded, occurrence.ID).Error; err != nil {
		t.Fatalf("failed to reload occurrence: %v", err)
	}
	if reloaded.Status != database.StatusAssigned {
		t.Errorf("expected status %s after referral, got %s", database.StatusAssigned, reloaded.Status)
	}
}

func TestReferOccurrence_EmptyDepartments(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0003", incidentType.ID).Create(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences/"+occurrence.UUID+"/referrals", nil).
		WithJSONBody(map[string]interface{}{
			"department_ids": []uint{},
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusUnprocessableEntity)
}

func TestPostMessage_ClosedOccurrenceConflicts(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	sender := testhelpers.NewUserBuilder().Create(t, db)
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0004", incidentType.ID).
		WithStatus(database.StatusClosed).
		Create(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences/"+occurrence.UUID+"/messages", nil).
		WithJSONBody(map[string]interface{}{
			"sender_id": sender.ID,
			"text":      "Is there any update here?",
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusConflict)
}

func TestResolveOccurrence(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0005", incidentType.ID).Create(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/occurrences/"+occurrence.UUID+"/resolve", nil)
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusNoContent)

	var reloaded database.Occurrence
	if err := db.First(&reloaded, occurrence.ID).Error; err != nil {
		t.Fatalf("failed to reload occurrence: %v", err)
	}
	if reloaded.Status != database.StatusClosed {
		t.Errorf("expected status %s, got %s", database.StatusClosed, reloaded.Status)
	}
}

func TestRecordResponse(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	dept := testhelpers.CreateDepartment(t, db, "Facilities")
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0006", incidentType.ID).
		WithStatus(database.StatusAssigned).
		Create(t, db)
	assignment := testhelpers.CreateAssignment(t, db, occurrence.ID, dept.ID, nil)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/assignments/"+strconvID(assignment.ID)+"/response", nil).
		WithJSONBody(map[string]interface{}{
			"root_cause":  "Broken door lock on the supply room",
			"action_plan": "Replace the lock and audit the remaining wing",
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusNoContent)

	var reloaded database.OccurrenceAssignment
	if err := db.First(&reloaded, assignment.ID).Error; err != nil {
		t.Fatalf("failed to reload assignment: %v", err)
	}
	if !reloaded.Completed() {
		t.Error("expected assignment to be completed")
	}
}

func TestRecordResponse_MissingRootCause(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	dept := testhelpers.CreateDepartment(t, db, "Pharmacy")
	occurrence := testhelpers.NewOccurrenceBuilder("OCC26-0007", incidentType.ID).
		WithStatus(database.StatusAssigned).
		Create(t, db)
	assignment := testhelpers.CreateAssignment(t, db, occurrence.ID, dept.ID, nil)

	ctx := testhelpers.NewHTTPTestContext(t, "POST", "/api/assignments/"+strconvID(assignment.ID)+"/response", nil).
		WithJSONBody(map[string]interface{}{
			"action_plan": "Plan without a cause",
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusUnprocessableEntity)
}

func TestMarkNotificationRead_NotFound(t *testing.T) {
	_, handler := setupTestHandler(t)

	ctx := testhelpers.NewHTTPTestContext(t, "PATCH", "/api/notifications/00000000-0000-0000-0000-000000000000/read", nil).
		WithJSONBody(map[string]interface{}{
			"user_id": 1,
		})
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusNotFound)
}

func TestListOccurrences(t *testing.T) {
	db, handler := setupTestHandler(t)
	incidentType := firstIncidentType(t, db)
	testhelpers.NewOccurrenceBuilder("OCC26-0010", incidentType.ID).Create(t, db)
	testhelpers.NewOccurrenceBuilder("OCC26-0011", incidentType.ID).Create(t, db)

	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/api/occurrences?per_page=1", nil)
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	ctx.AssertStatus(http.StatusOK)

	var body struct {
		Occurrences []database.Occurrence `json:"occurrences"`
		Total       int64                 `json:"total"`
		TotalPages  int                   `json:"total_pages"`
	}
	ctx.DecodeJSON(&body)
	if len(body.Occurrences) != 1 {
		t.Errorf("expected 1 occurrence on the page, got %d", len(body.Occurrences))
	}
	if body.Total != 2 {
		t.Errorf("expected total 2, got %d", body.Total)
	}
	if body.TotalPages != 2 {
		t.Errorf("expected 2 pages, got %d", body.TotalPages)
	}
}

func strconvID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
