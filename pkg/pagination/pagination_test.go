package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func params(target string) Params {
	e := echo.New()
	return FromContext(e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		target string
		want   Params
	}{
		{"/", Params{Limit: DefaultLimit}},
		{"/?limit=50&offset=10", Params{Limit: 50, Offset: 10}},
		{"/?_count=5&_offset=15&limit=50", Params{Limit: 5, Offset: 15}},
		{"/?limit=500", Params{Limit: MaxLimit}},
		{"/?limit=-1&offset=-5", Params{Limit: DefaultLimit}},
		{"/?limit=abc", Params{Limit: DefaultLimit}},
	}
	for _, tt := range tests {
		if got := params(tt.target); got != tt.want {
			t.Errorf("%s: expected %+v, got %+v", tt.target, tt.want, got)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 50, 20, 0)
	if !r.HasMore || r.Total != 50 {
		t.Errorf("expected has_more with total 50, got %+v", r)
	}
	if NewResponse(nil, 20, 20, 0).HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestParams_Offsets(t *testing.T) {
	p := Params{Limit: 20, Offset: 10}
	if p.NextOffset() != 30 || p.PreviousOffset() != 0 {
		t.Errorf("unexpected offsets next=%d prev=%d", p.NextOffset(), p.PreviousOffset())
	}
	if !p.HasPrevious() || !p.HasNext(31) || p.HasNext(30) {
		t.Error("unexpected page neighbours")
	}
}

func TestParams_Links(t *testing.T) {
	u, _ := url.Parse("/api/v1/bills?status=SUBMITTED&_count=10&_offset=10")
	p := Params{Limit: 10, Offset: 10}

	got := p.Links(u, 45)
	if !strings.Contains(got, `</api/v1/bills?limit=10&offset=20&status=SUBMITTED>; rel="next"`) {
		t.Errorf("missing next link in %s", got)
	}
	if !strings.Contains(got, `</api/v1/bills?limit=10&offset=0&status=SUBMITTED>; rel="prev"`) {
		t.Errorf("missing prev link in %s", got)
	}
	if (Params{Limit: 10}).Links(u, 5) != "" {
		t.Error("expected no links for a single page")
	}
}

func TestRespond(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/claims?limit=2", nil), rec)

	if err := Respond(c, []int{1, 2}, 3, FromContext(c)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Header().Get("Link"), `rel="next"`) {
		t.Errorf("expected next link, got %q", rec.Header().Get("Link"))
	}
	var body struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 3 || !body.HasMore {
		t.Errorf("unexpected body %+v", body)
	}
}
