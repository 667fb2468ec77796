package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/tests"
)

func Test_catalogApi_query(t *testing.T) {
	app := setup(t)
	f := app.seed(t)

	tests := []httpTest{
		{name: "all", path: "/api/items", wantData: marchallList(t, f.course, f.free, f.mug)},
		{name: "by kind", path: "/api/items?kind=merch", wantData: marchallList(t, f.mug)},
		{name: "by teacher", path: "/api/items?teacherId=" + f.teacher.ID + "&kind=course", wantData: marchallList(t, f.course, f.free)},
		{name: "unknown teacher", path: "/api/items?teacherId=lol", wantData: marchallList(t)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.wantCode = http.StatusOK

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			app.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_catalogApi_create(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	stock := 10

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Teacher or admin required", token: app.getToken(t, f.learner),
			body:     marchallObj(t, course.NewItem{Title: "Go 102", Price: testutil.Decimal(t, "10"), Kind: course.KindCourse}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "courses have no stock", token: app.getToken(t, f.teacher),
			body:     marchallObj(t, course.NewItem{Title: "Go 102", Price: testutil.Decimal(t, "10"), Kind: course.KindCourse, Stock: &stock}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"stock": "courses have no stock"}),
		},
		{
			name: "negative price", token: app.getToken(t, f.teacher),
			body:     marchallObj(t, course.NewItem{Title: "Go 102", Price: testutil.Decimal(t, "-1"), Kind: course.KindCourse}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"price": "price cannot be negative"}),
		},
		{
			name: "teacher sells their own items", token: app.getToken(t, f.teacher),
			body:     marchallObj(t, course.NewItem{Title: " Go 102 ", Price: testutil.Decimal(t, "10.5"), Kind: course.KindCourse, TeacherID: "someone"}),
			wantCode: http.StatusCreated, extra: f.teacher.ID,
		},
		{
			name: "admin sells for a teacher", token: app.getToken(t, f.admin),
			body:     marchallObj(t, course.NewItem{Title: "Go 102", Price: testutil.Decimal(t, "10.5"), Kind: course.KindMerch, TeacherID: f.teacher.ID, Stock: &stock}),
			wantCode: http.StatusCreated, extra: f.teacher.ID,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/items"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)

			if teacherID, ok := tt.extra.(string); ok {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var it course.Item
				unmarshal(t, rec, &it)
				assert.NotEmpty(t, it.ID)
				assert.Equal(t, "Go 102", it.Title)
				assert.Equal(t, "10.5", it.Price.String())
				assert.Equal(t, teacherID, it.TeacherID)
				assert.True(t, it.Active)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
