package revenue

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/roster"
)

type (
	// LearnerRecord is one learner of a course. Roster-only learners carry a zero Amount and no PaidAt.
	LearnerRecord struct {
		LearnerID string          `json:"learner_id"`
		Name      string          `json:"name"`
		Amount    decimal.Decimal `json:"amount"`
		PaidAt    *time.Time      `json:"paid_at"`
		Origin    roster.Origin   `json:"origin"`
	}

	CourseReport struct {
		CourseID     string          `json:"course_id"`
		Title        string          `json:"title"`
		Revenue      decimal.Decimal `json:"revenue"`
		StudentCount int             `json:"student_count"`
		Learners     []LearnerRecord `json:"learners"`
	}

	TeacherReport struct {
		TeacherID    string          `json:"teacher_id"`
		TeacherName  string          `json:"teacher_name"`
		Revenue      decimal.Decimal `json:"revenue"`
		StudentCount int             `json:"student_count"`
		Courses      []CourseReport  `json:"courses"`
	}
)

// sortable fields
const (
	OrderByRevenue  = "revenue"
	OrderByStudents = "students"
	OrderByName     = "name"
)

var defaultOrdering = []core.DBOrdering{{Field: OrderByRevenue}}

type sortKey struct {
	revenue  decimal.Decimal
	students int
	name     string
}

func less(a, b sortKey, orderings []core.DBOrdering) bool {
	for _, ord := range orderings {
		var cmp int
		switch ord.Field {
		case OrderByRevenue:
			cmp = a.revenue.Cmp(b.revenue)
		case OrderByStudents:
			cmp = a.students - b.students
		case OrderByName:
			cmp = strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
		}
		if cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

// Sort orders the teachers, and the courses of each teacher, by the given fields.
// Unknown fields are ignored; revenue descending is the default.
func Sort(reports []TeacherReport, orderings ...core.DBOrdering) {
	if len(orderings) == 0 {
		orderings = defaultOrdering
	}
	for _, tr := range reports {
		courses := tr.Courses
		sort.SliceStable(courses, func(i, j int) bool {
			return less(
				sortKey{courses[i].Revenue, courses[i].StudentCount, courses[i].Title},
				sortKey{courses[j].Revenue, courses[j].StudentCount, courses[j].Title},
				orderings,
			)
		})
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return less(
			sortKey{reports[i].Revenue, reports[i].StudentCount, reports[i].TeacherName},
			sortKey{reports[j].Revenue, reports[j].StudentCount, reports[j].TeacherName},
			orderings,
		)
	})
}
