package api

import "testing"

type sampleRequest struct {
	Description  string `json:"description" validate:"required,min=3"`
	DepartmentID uint   `json:"department_id" validate:"required"`
	Channel      string `json:"channel" validate:"omitempty,oneof=EMAIL MOBILE BOTH"`
	Internal     string `json:"-" validate:"omitempty,max=5"`
}

func TestValidate(t *testing.T) {
	if errs := Validate(sampleRequest{Description: "Verbal threat", DepartmentID: 4}); errs != nil {
		t.Errorf("expected valid struct, got %v", errs)
	}
}

func TestValidate_CollectsFieldErrors(t *testing.T) {
	errs := Validate(sampleRequest{Channel: "FAX"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if msg, ok := errs["description"]; !ok || msg != "is required" {
		t.Errorf("expected required error for description, got %v", errs)
	}
	if _, ok := errs["department_id"]; !ok {
		t.Errorf("expected error for department_id, got %v", errs)
	}
	if msg, ok := errs["channel"]; !ok || msg != "must be one of: EMAIL MOBILE BOTH" {
		t.Errorf("expected oneof error for channel, got %v", errs)
	}
}

func TestValidate_UnexportedJSONNameFallsBack(t *testing.T) {
	errs := Validate(sampleRequest{Description: "ok text", DepartmentID: 1, Internal: "too long value"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if _, ok := errs["Internal"]; !ok {
		t.Errorf("expected struct field name for json:\"-\" field, got %v", errs)
	}
}
