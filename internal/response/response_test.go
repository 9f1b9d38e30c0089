package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAttachment(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"results.xlsx", "attachment; filename=results.xlsx"},
		{"unit 3 results.xlsx", `attachment; filename="unit 3 results.xlsx"`},
		{`say "hi".csv`, `attachment; filename="say \"hi\".csv"`},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		Attachment(c, tt.filename, "text/csv", []byte("a,b"))

		if got := w.Header().Get("Content-Disposition"); got != tt.want {
			t.Errorf("%q: Content-Disposition = %q, want %q", tt.filename, got, tt.want)
		}
		if got := w.Header().Get("Content-Type"); got != "text/csv" {
			t.Errorf("Content-Type = %q", got)
		}
		if w.Body.String() != "a,b" {
			t.Errorf("body = %q", w.Body.String())
		}
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage, total int
		wantPages            int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.perPage, tt.total)
		if p.TotalPages != tt.wantPages {
			t.Errorf("NewPagination(%d, %d, %d).TotalPages = %d, want %d",
				tt.page, tt.perPage, tt.total, p.TotalPages, tt.wantPages)
		}
	}
}
