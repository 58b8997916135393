package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/safereport/safereport/internal/api"
	"github.com/safereport/safereport/internal/database"
	"github.com/safereport/safereport/internal/notify"
	"github.com/safereport/safereport/internal/services"

	"gorm.io/gorm"
)

// OccurrenceHandler exposes the occurrence workflow over HTTP
type OccurrenceHandler struct {
	db      *gorm.DB
	service *services.OccurrenceService
}

// NewOccurrenceHandler creates a new occurrence handler
func NewOccurrenceHandler(db *gorm.DB, service *services.OccurrenceService) *OccurrenceHandler {
	return &OccurrenceHandler{
		db:      db,
		service: service,
	}
}

// CreateOccurrenceRequest is the intake payload
type CreateOccurrenceRequest struct {
	Description         string `json:"description" validate:"required,min=3"`
	MedicalRecordNumber string `json:"medical_record_number" validate:"omitempty,max=64"`
	Location            string `json:"location" validate:"omitempty,max=255"`
	OccurredAt          string `json:"occurred_at" validate:"required"`
	ReporterID          *uint  `json:"reporter_id"`
	IncidentTypeID      uint   `json:"incident_type_id" validate:"required"`
}

// Create handles POST /api/occurrences
func (h *OccurrenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOccurrenceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		api.RespondValidationError(w, map[string]string{"occurred_at": "must be a valid RFC 3339 timestamp"})
		return
	}

	occurrence, err := h.service.CreateOccurrence(r.Context(), services.CreateOccurrenceInput{
		Description:         req.Description,
		MedicalRecordNumber: req.MedicalRecordNumber,
		Location:            req.Location,
		OccurredAt:          occurredAt,
		ReporterID:          req.ReporterID,
		IncidentTypeID:      req.IncidentTypeID,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusCreated, occurrence)
}

// List handles GET /api/occurrences
func (h *OccurrenceHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := api.ParsePagination(r)

	occurrences, total, err := h.service.ListOccurrences(pagination.PerPage, pagination.Offset())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"occurrences": occurrences,
		"total":       total,
		"page":        pagination.Page,
		"total_pages": pagination.TotalPages(total),
	})
}

// Get handles GET /api/occurrences/{uuid}
func (h *OccurrenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	occurrence, ok := h.lookupOccurrence(w, r)
	if !ok {
		return
	}

	states, err := h.service.AssignmentStates(occurrence.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	type assignmentView struct {
		database.OccurrenceAssignment
		Answered bool `json:"answered"`
	}
	assignments := make([]assignmentView, 0, len(states))
	for _, state := range states {
		assignments = append(assignments, assignmentView{
			OccurrenceAssignment: state.Assignment,
			Answered:             state.Answered,
		})
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"occurrence":  occurrence,
		"assignments": assignments,
	})
}

// ReferRequest is the referral payload
type ReferRequest struct {
	DepartmentIDs []uint `json:"department_ids" validate:"required,min=1"`
	Message       string `json:"message" validate:"omitempty,max=4000"`
}

// Refer handles POST /api/occurrences/{uuid}/referrals
func (h *OccurrenceHandler) Refer(w http.ResponseWriter, r *http.Request) {
	occurrence, ok := h.lookupOccurrence(w, r)
	if !ok {
		return
	}

	var req ReferRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	assignments, err := h.service.ReferToDepartments(r.Context(), occurrence.ID, req.DepartmentIDs, req.Message)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"assignments": assignments,
	})
}

// PostMessageRequest is the thread message payload
type PostMessageRequest struct {
	SenderID uint   `json:"sender_id" validate:"required"`
	Text     string `json:"text" validate:"required,min=1,max=4000"`
}

// PostMessage handles POST /api/occurrences/{uuid}/messages
func (h *OccurrenceHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	occurrence, ok := h.lookupOccurrence(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	message, err := h.service.PostThreadMessage(r.Context(), occurrence.ID, req.SenderID, req.Text)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusCreated, message)
}

// Resolve handles POST /api/occurrences/{uuid}/resolve
func (h *OccurrenceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	occurrence, ok := h.lookupOccurrence(w, r)
	if !ok {
		return
	}

	if err := h.service.ResolveOccurrence(r.Context(), occurrence.ID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondNoContent(w)
}

// RecordResponseRequest is the department response payload
type RecordResponseRequest struct {
	RootCause  string `json:"root_cause" validate:"required,min=3"`
	ActionPlan string `json:"action_plan" validate:"omitempty,max=8000"`
}

// RecordResponse handles POST /api/assignments/{id}/response
func (h *OccurrenceHandler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	assignmentID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid assignment ID")
		return
	}

	var req RecordResponseRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := h.service.RecordDepartmentResponse(r.Context(), uint(assignmentID), req.RootCause, req.ActionPlan); err != nil {
		h.respondServiceError(w, err)
		return
	}

	api.RespondNoContent(w)
}

// MarkReadRequest identifies the recipient marking a notification as read
type MarkReadRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

// MarkNotificationRead handles PATCH /api/notifications/{uuid}/read
func (h *OccurrenceHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationUUID := r.PathValue("uuid")

	var req MarkReadRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if err := notify.MarkRead(h.db, notificationUUID, req.UserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Notification not found")
			return
		}
		h.respondServiceError(w, err)
		return
	}

	api.RespondNoContent(w)
}

// lookupOccurrence resolves the {uuid} path segment, writing the error
// response itself when the occurrence cannot be loaded.
func (h *OccurrenceHandler) lookupOccurrence(w http.ResponseWriter, r *http.Request) (*database.Occurrence, bool) {
	occurrence, err := h.service.GetOccurrenceByUUID(r.PathValue("uuid"))
	if err != nil {
		h.respondServiceError(w, err)
		return nil, false
	}
	return occurrence, true
}

// respondServiceError maps workflow errors onto the HTTP error taxonomy:
// validation → 422, unknown record → 404, illegal transition → 409,
// anything else → 500 with the detail kept out of the response.
func (h *OccurrenceHandler) respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		api.RespondValidationError(w, map[string]string{validationErr.Field: validationErr.Message})
	case errors.Is(err, services.ErrNotFound):
		api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", "Record not found")
	case errors.Is(err, services.ErrOccurrenceClosed):
		api.RespondErrorWithCode(w, http.StatusConflict, "occurrence_closed", "Occurrence is closed")
	default:
		log.Printf("Unhandled service error: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
