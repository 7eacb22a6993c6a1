package payment

import (
	"sort"
	"time"
)

const earningsDays = 30

type (
	CourseEarnings struct {
		CourseID    string `json:"course_id"`
		CourseTitle string `json:"course_title"`
		Sales       int    `json:"sales"`
		Earnings    int64  `json:"earnings"`
	}

	DailyEarnings struct {
		Date     string `json:"date"` // YYYY-MM-DD
		Sales    int    `json:"sales"`
		Earnings int64  `json:"earnings"`
	}

	Earnings struct {
		TotalEarnings int64            `json:"total_earnings"`
		TotalSales    int              `json:"total_sales"`
		Courses       []CourseEarnings `json:"courses"`
		Daily         []DailyEarnings  `json:"daily"`
	}
)

// AggregateEarnings sums sales overall, per course and per day over the 30 days ending at now.
// Days without sales are zero-filled and the series runs oldest first.
func AggregateEarnings(sales []Sale, now time.Time) Earnings {
	now = now.UTC()
	res := Earnings{
		Courses: []CourseEarnings{},
		Daily:   make([]DailyEarnings, earningsDays),
	}

	dayIdx := make(map[string]int, earningsDays)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < earningsDays; i++ {
		date := today.AddDate(0, 0, i-earningsDays+1).Format("2006-01-02")
		res.Daily[i] = DailyEarnings{Date: date}
		dayIdx[date] = i
	}

	courseIdx := make(map[string]int)
	for _, s := range sales {
		res.TotalEarnings += s.Amount
		res.TotalSales++

		i, ok := courseIdx[s.CourseID]
		if !ok {
			i = len(res.Courses)
			courseIdx[s.CourseID] = i
			res.Courses = append(res.Courses, CourseEarnings{CourseID: s.CourseID, CourseTitle: s.CourseTitle})
		}
		res.Courses[i].Sales++
		res.Courses[i].Earnings += s.Amount

		if d, ok := dayIdx[s.CompletedAt.UTC().Format("2006-01-02")]; ok {
			res.Daily[d].Sales++
			res.Daily[d].Earnings += s.Amount
		}
	}

	sort.SliceStable(res.Courses, func(i, j int) bool { return res.Courses[i].Earnings > res.Courses[j].Earnings })
	return res
}
