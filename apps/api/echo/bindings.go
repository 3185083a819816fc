package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/campuscoin/campuscoin/core"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	limitParam    = "limit"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPagination reads the page and limit query parameters; malformed values
// fall back to the defaults.
func bindPagination(ctx echo.Context) core.Pagination {
	var page core.Pagination
	if v, err := strconv.Atoi(ctx.QueryParam(pageParam)); err == nil {
		page.Page = v
	}
	if v, err := strconv.Atoi(ctx.QueryParam(limitParam)); err == nil {
		page.Limit = v
	}
	page.Clean()
	return page
}

// PaginatedResponse is the envelope for all list endpoints.
type PaginatedResponse struct {
	core.PageInfo
	Results interface{} `json:"results"`
}

func newPaginatedResponse(page core.Pagination, total int, results interface{}) PaginatedResponse {
	return PaginatedResponse{PageInfo: core.NewPageInfo(page, total), Results: results}
}
