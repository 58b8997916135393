// Package testhelpers provides reusable testing utilities for SafeReport.
//
// This package contains:
// - In-memory database setup
// - Data builders for workflow records
// - HTTP test helpers
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safereport/safereport/internal/database"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB opens an in-memory sqlite database with all migrations applied.
// Each call returns an isolated database.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// SeedTestDB opens an in-memory database and loads the default severity
// scale and incident taxonomy.
func SeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := OpenTestDB(t)
	if err := database.SeedTaxonomy(db); err != nil {
		t.Fatalf("failed to seed test database: %v", err)
	}
	return db
}

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// DecodeJSON decodes the recorded response body into v
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode response body: %v", err)
	}
}

// AssertStatus fails the test if the recorded status differs from want
func (ctx *HTTPTestContext) AssertStatus(want int) {
	ctx.T.Helper()
	if got := ctx.Recorder.Code; got != want {
		ctx.T.Fatalf("expected status %d, got %d (body: %s)", want, got, ctx.Recorder.Body.String())
	}
}
