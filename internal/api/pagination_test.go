package api

import (
	"net/http/httptest"
	"testing"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantPage    int
		wantPerPage int
	}{
		{"defaults", "", 1, 25},
		{"explicit values", "page=3&per_page=10", 3, 10},
		{"per_page capped", "per_page=500", 1, 100},
		{"invalid values ignored", "page=zero&per_page=-5", 1, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/occurrences?"+tt.query, nil)
			p := ParsePagination(r)
			if p.Page != tt.wantPage {
				t.Errorf("page: got %d, want %d", p.Page, tt.wantPage)
			}
			if p.PerPage != tt.wantPerPage {
				t.Errorf("per_page: got %d, want %d", p.PerPage, tt.wantPerPage)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	p := PaginationParams{Page: 3, PerPage: 10}
	if got := p.Offset(); got != 20 {
		t.Errorf("expected offset 20, got %d", got)
	}
}

func TestTotalPages(t *testing.T) {
	p := PaginationParams{Page: 1, PerPage: 10}
	if got := p.TotalPages(25); got != 3 {
		t.Errorf("expected 3 pages for 25 records, got %d", got)
	}
	if got := p.TotalPages(0); got != 0 {
		t.Errorf("expected 0 pages for no records, got %d", got)
	}
}
