package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/library"
)

const orderingParam = "ordering"

// bindOrderings reads the "ordering" query param, e.g. `?ordering=-due_date,status`.
func bindOrderings(ctx echo.Context, allowed []string) []core.DBOrdering {
	return core.ParseOrderings(ctx.QueryParam(orderingParam), allowed...)
}

// bindBorrowFilter reads a library.BorrowFilter from the query string.
// Statuses may be repeated or comma separated; due_before and due_after are RFC 3339 times.
func bindBorrowFilter(ctx echo.Context) (*library.BorrowFilter, error) {
	params := ctx.QueryParams()
	filter := &library.BorrowFilter{
		MemberID: core.CleanString(params.Get("member_id")),
		BookID:   core.CleanString(params.Get("book_id")),
	}

	for _, val := range params["status"] {
		for _, s := range strings.Split(val, ",") {
			if s = core.CleanString(s); s == "" {
				continue
			}
			status := library.BorrowStatus(strings.ToUpper(s))
			if !status.Valid() {
				return nil, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "invalid status"})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.DueBefore, err = parseTimeParam(params.Get("due_before"), "due_before"); err != nil {
		return nil, err
	}
	if filter.DueAfter, err = parseTimeParam(params.Get("due_after"), "due_after"); err != nil {
		return nil, err
	}
	return filter, nil
}

func parseTimeParam(val, field string) (time.Time, error) {
	if val = core.CleanString(val); val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid time, use RFC 3339"})
	}
	return t.UTC(), nil
}
