package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
)

func Test_enrollmentApi_enrollFree(t *testing.T) {
	app := setup(t)
	f := app.seed(t)
	token := app.getToken(t, f.learner)
	path := func(courseID string) string { return "/api/enrollments/" + courseID }

	tests := []httpTest{
		{name: "Auth required", path: path(f.free.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "unknown course", path: path("unknown"), token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "paid course", path: path(f.course.ID), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course": enrollment.ErrPaidItem.Error()}),
		},
		{
			name: "not a course", path: path(f.mug.ID), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course": enrollment.ErrNotACourse.Error()}),
		},
		{name: "enrolled", path: path(f.free.ID), token: token, wantCode: http.StatusCreated},
		{
			name: "already enrolled", path: path(f.free.ID), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course": enrollment.ErrAlreadyEnrolled.Error()}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)

			if tt.wantCode == http.StatusCreated {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var e roster.Entry
				unmarshal(t, rec, &e)
				assert.Equal(t, f.free.ID, e.CourseID)
				assert.Equal(t, f.learner.ID, e.LearnerID)
				assert.Equal(t, roster.OriginFree, e.Origin)
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the free path never touches the ledger
	entries, err := app.ledgerRepo.QueryEntries(context.Background(), ledger.QueryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func Test_enrollmentApi_courseRoster(t *testing.T) {
	app := setup(t)
	f := app.seed(t)

	req, rec := newAuthRequest(http.MethodPost, "/api/enrollments/"+f.free.ID, app.getToken(t, f.learner))
	app.serve(req, rec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry, err := app.rosterRepo.GetEntry(context.Background(), f.free.ID, f.learner.ID)
	require.NoError(t, err)

	path := func(courseID string) string { return "/api/enrollments/" + courseID }
	tests := []httpTest{
		{name: "Auth required", path: path(f.free.ID), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "not the teacher", path: path(f.free.ID), token: app.getToken(t, f.learner), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "not a course", path: path(f.mug.ID), token: app.getToken(t, f.teacher), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "teacher", path: path(f.free.ID), token: app.getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallList(t, entry)},
		{name: "admin", path: path(f.free.ID), token: app.getToken(t, f.admin), wantCode: http.StatusOK, wantData: marchallList(t, entry)},
		{name: "empty roster", path: path(f.course.ID), token: app.getToken(t, f.teacher), wantCode: http.StatusOK, wantData: marchallList(t)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
