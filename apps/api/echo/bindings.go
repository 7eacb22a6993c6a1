package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/course"
	"github.com/skillsharp/lms/core/payment"
	"github.com/skillsharp/lms/core/user"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=price,-created_at`. A leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// bindPagination reads `?page=2&limit=20`. Bad values fall back to the defaults.
func bindPagination(ctx echo.Context) *core.Pagination {
	page := new(core.Pagination)
	page.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	page.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	page.Clean()
	return page
}

func queryBool(ctx echo.Context, name string) *bool {
	if b, err := strconv.ParseBool(ctx.QueryParam(name)); err == nil {
		return &b
	}
	return nil
}

func queryInt64(ctx echo.Context, name string) *int64 {
	if n, err := strconv.ParseInt(ctx.QueryParam(name), 10, 64); err == nil {
		return &n
	}
	return nil
}

func bindCourseFilter(ctx echo.Context) *course.QueryFilter {
	return &course.QueryFilter{
		Search:       ctx.QueryParam("search"),
		Category:     ctx.QueryParam("category"),
		Level:        ctx.QueryParam("level"),
		MinPrice:     queryInt64(ctx, "min_price"),
		MaxPrice:     queryInt64(ctx, "max_price"),
		InstructorID: ctx.QueryParam("instructor"),
		Published:    queryBool(ctx, "published"),
		Approved:     queryBool(ctx, "approved"),
	}
}

func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	return &user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Roles:    ctx.QueryParams()["role"],
		IsActive: queryBool(ctx, "is_active"),
	}
}

func bindPaymentFilter(ctx echo.Context) *payment.QueryFilter {
	return &payment.QueryFilter{
		Status:   ctx.QueryParam("status"),
		Provider: ctx.QueryParam("provider"),
		UserID:   ctx.QueryParam("user"),
		CourseID: ctx.QueryParam("course"),
	}
}

// pageResult is the envelope of paginated lists.
func pageResult(key string, items interface{}, total int, page *core.Pagination) echo.Map {
	return echo.Map{
		"success": true,
		key:       items,
		"total":   total,
		"page":    page.Page,
		"pages":   page.Pages(total),
	}
}
