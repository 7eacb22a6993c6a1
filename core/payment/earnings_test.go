package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateEarnings(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	t.Run("no sales", func(t *testing.T) {
		res := AggregateEarnings(nil, now)
		assert.Zero(t, res.TotalEarnings)
		assert.Zero(t, res.TotalSales)
		assert.NotNil(t, res.Courses)
		require.Len(t, res.Daily, earningsDays)
		assert.Equal(t, "2024-02-10", res.Daily[0].Date)
		assert.Equal(t, "2024-03-10", res.Daily[earningsDays-1].Date)
	})

	t.Run("sales", func(t *testing.T) {
		sales := []Sale{
			{CourseID: "go", CourseTitle: "Go", Amount: 1000, CompletedAt: now.Add(-time.Hour)},
			{CourseID: "rust", CourseTitle: "Rust", Amount: 3000, CompletedAt: now.AddDate(0, 0, -1)},
			{CourseID: "go", CourseTitle: "Go", Amount: 1000, CompletedAt: now.AddDate(0, 0, -29)},
			// before the window: counted in the totals only
			{CourseID: "go", CourseTitle: "Go", Amount: 1000, CompletedAt: now.AddDate(0, 0, -45)},
		}
		res := AggregateEarnings(sales, now)

		assert.Equal(t, int64(6000), res.TotalEarnings)
		assert.Equal(t, 4, res.TotalSales)
		assert.Equal(t, []CourseEarnings{
			{CourseID: "go", CourseTitle: "Go", Sales: 3, Earnings: 3000},
			{CourseID: "rust", CourseTitle: "Rust", Sales: 1, Earnings: 3000},
		}, res.Courses)

		assert.Equal(t, DailyEarnings{Date: "2024-03-10", Sales: 1, Earnings: 1000}, res.Daily[29])
		assert.Equal(t, DailyEarnings{Date: "2024-03-09", Sales: 1, Earnings: 3000}, res.Daily[28])
		assert.Equal(t, DailyEarnings{Date: "2024-02-10", Sales: 1, Earnings: 1000}, res.Daily[0])

		var windowSales int
		for _, d := range res.Daily {
			windowSales += d.Sales
		}
		assert.Equal(t, 3, windowSales)
	})

	t.Run("courses sorted by earnings", func(t *testing.T) {
		res := AggregateEarnings([]Sale{
			{CourseID: "a", Amount: 100, CompletedAt: now},
			{CourseID: "b", Amount: 500, CompletedAt: now},
			{CourseID: "c", Amount: 300, CompletedAt: now},
		}, now)
		ids := make([]string, 0, len(res.Courses))
		for _, c := range res.Courses {
			ids = append(ids, c.CourseID)
		}
		assert.Equal(t, []string{"b", "c", "a"}, ids)
	})
}
