package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core/payment"
	"github.com/trezcool/masomo-academy/core/revenue"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
	"github.com/trezcool/masomo-academy/tests"
)

func Test_revenueApi_report(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	teacher2 := testutil.CreateUser(t, app.userRepo, "Teacher2", "teacher2", "teacher2@test.cd", "", []string{user.RoleTeacher}, true)
	sql := testutil.CreateCourse(t, app.courseRepo, "SQL", "20", teacher2.ID)

	// learner pays Go 101 and the mug, other pays SQL and enrolls in the free course
	for i, buy := range []struct {
		usr    user.User
		itemID string
	}{{f.learner, f.course.ID}, {f.learner, f.mug.ID}, {f.other, sql.ID}} {
		res := app.checkout(t, buy.usr, buy.itemID)
		_, err := app.processor.MarkPaid(res.SessionID)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, app.webhook(t, "evt_"+string(rune('a'+i)), payment.EventSessionCompleted, res.SessionID))
	}
	req, rec := newAuthRequest(http.MethodPost, "/api/enrollments/"+f.free.ID, app.getToken(t, f.other))
	app.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	type extraTest struct {
		teacherIDs []string
	}
	tests := []httpTest{
		{name: "Auth required", path: "/api/revenue", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Teacher or admin required", path: "/api/revenue", token: app.getToken(t, f.learner), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "other teacher", path: "/api/revenue?teacherId=" + teacher2.ID, token: app.getToken(t, f.teacher),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{name: "own revenue", path: "/api/revenue", token: app.getToken(t, f.teacher), extra: extraTest{[]string{f.teacher.ID}}},
		{name: "admin, all teachers", path: "/api/revenue", token: app.getToken(t, f.admin), extra: extraTest{[]string{f.teacher.ID, teacher2.ID}}},
		{
			name: "admin, ordered by revenue asc", path: "/api/revenue?ordering=revenue", token: app.getToken(t, f.admin),
			extra: extraTest{[]string{teacher2.ID, f.teacher.ID}},
		},
		{
			name: "admin, one teacher", path: "/api/revenue?teacherId=" + teacher2.ID, token: app.getToken(t, f.admin),
			extra: extraTest{[]string{teacher2.ID}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)

			extra, ok := tt.extra.(extraTest)
			if !ok {
				checkCodeAndData(t, tt, rec)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var reports []revenue.TeacherReport
			unmarshal(t, rec, &reports)
			ids := make([]string, 0, len(reports))
			for _, tr := range reports {
				ids = append(ids, tr.TeacherID)
			}
			assert.Equal(t, extra.teacherIDs, ids)
		})
	}

	t.Run("merged report", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/revenue", app.getToken(t, f.teacher))
		app.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var reports []revenue.TeacherReport
		unmarshal(t, rec, &reports)
		require.Len(t, reports, 1)
		tr := reports[0]
		assert.Equal(t, "Teacher", tr.TeacherName)
		assert.Equal(t, "49.99", tr.Revenue.String(), "merchandise is not course revenue")
		assert.Equal(t, 2, tr.StudentCount)
		require.Len(t, tr.Courses, 2)

		paid, free := tr.Courses[0], tr.Courses[1]
		assert.Equal(t, f.course.ID, paid.CourseID)
		require.Len(t, paid.Learners, 1)
		assert.Equal(t, "Hero", paid.Learners[0].Name)
		assert.Equal(t, roster.OriginPaid, paid.Learners[0].Origin)
		assert.NotNil(t, paid.Learners[0].PaidAt)

		assert.Equal(t, f.free.ID, free.CourseID)
		require.Len(t, free.Learners, 1)
		assert.Equal(t, "Other", free.Learners[0].Name)
		assert.True(t, free.Learners[0].Amount.IsZero())
		assert.Nil(t, free.Learners[0].PaidAt)
		assert.Equal(t, roster.OriginFree, free.Learners[0].Origin)
	})
}
