package pagination

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. The FHIR-style
// _count and _offset take precedence.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Response wraps a paginated API response.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

func (p Params) HasNext(total int) bool { return p.Offset+p.Limit < total }

func (p Params) HasPrevious() bool { return p.Offset > 0 }

func (p Params) NextOffset() int { return p.Offset + p.Limit }

// PreviousOffset never goes below zero.
func (p Params) PreviousOffset() int {
	if prev := p.Offset - p.Limit; prev > 0 {
		return prev
	}
	return 0
}

// Links builds an RFC 8288 Link header value for the neighbouring pages of
// u. Filters already present in the query are preserved.
func (p Params) Links(u *url.URL, total int) string {
	var links []string
	page := func(rel string, offset int) {
		q := u.Query()
		q.Del("_count")
		q.Del("_offset")
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("offset", strconv.Itoa(offset))
		links = append(links, fmt.Sprintf(`<%s?%s>; rel="%s"`, u.Path, q.Encode(), rel))
	}
	if p.HasNext(total) {
		page("next", p.NextOffset())
	}
	if p.HasPrevious() {
		page("prev", p.PreviousOffset())
	}
	return strings.Join(links, ", ")
}

// Respond writes the page as JSON and advertises neighbouring pages in the
// Link header.
func Respond(c echo.Context, data interface{}, total int, p Params) error {
	if links := p.Links(c.Request().URL, total); links != "" {
		c.Response().Header().Set("Link", links)
	}
	return c.JSON(http.StatusOK, NewResponse(data, total, p.Limit, p.Offset))
}
