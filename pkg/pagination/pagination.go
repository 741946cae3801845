// Package pagination parses list query parameters and wraps paged results.
package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the window and ordering requested by a list call.
type Params struct {
	Limit  int
	Offset int
	Sort   string
	Asc    bool
}

// FromContext reads ?limit=, ?offset=, ?sort= and ?order=. The limit is
// clamped to MaxLimit and order defaults to descending.
func FromContext(c echo.Context) Params {
	p := Params{
		Limit:  atoiOr(c.QueryParam("limit"), DefaultLimit),
		Offset: atoiOr(c.QueryParam("offset"), 0),
		Sort:   strings.ToLower(strings.TrimSpace(c.QueryParam("sort"))),
		Asc:    strings.EqualFold(c.QueryParam("order"), "asc"),
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Response wraps one page of results.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
	}
}
