package enrollment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/roster"
)

// EnrollFree grants access to a free course without going through the payment processor.
// No ledger entry is written.
func (svc *Service) EnrollFree(ctx context.Context, learnerID, courseID string) (roster.Entry, error) {
	learner, err := svc.getLearner(ctx, learnerID)
	if err != nil {
		return roster.Entry{}, err
	}

	it, err := svc.Catalog.GetPurchasableItem(ctx, courseID)
	if err != nil {
		return roster.Entry{}, errors.Wrap(err, "getting course")
	}
	switch {
	case !it.IsCourse():
		return roster.Entry{}, validationErr(ErrNotACourse, "course")
	case !it.Active:
		return roster.Entry{}, validationErr(ErrItemInactive, "course")
	case !it.IsFree():
		return roster.Entry{}, validationErr(ErrPaidItem, "course")
	}

	added, err := svc.Roster.AddEntries(ctx, roster.Entry{
		CourseID:    it.ID,
		LearnerID:   learner.ID,
		LearnerName: learner.Name,
		EnrolledAt:  svc.nowFunc(),
		Origin:      roster.OriginFree,
	})
	if err != nil {
		return roster.Entry{}, errors.Wrap(err, "adding roster entry")
	}
	if len(added) == 0 {
		return roster.Entry{}, validationErr(ErrAlreadyEnrolled, "course")
	}

	svc.Logger.Info("free enrollment", map[string]interface{}{"course_id": it.ID, "learner_id": learner.ID})
	return added[0], nil
}

// CourseRoster returns the course and everyone with access to it, whatever the origin of their entry.
func (svc *Service) CourseRoster(ctx context.Context, courseID string) (course.Item, []roster.Entry, error) {
	it, err := svc.Catalog.GetPurchasableItem(ctx, courseID)
	if err != nil {
		return course.Item{}, nil, errors.Wrap(err, "getting course")
	}
	if !it.IsCourse() {
		return course.Item{}, nil, errors.Wrap(course.ErrNotFound, courseID)
	}
	entries, err := svc.Roster.QueryEntries(ctx, it.ID)
	if err != nil {
		return course.Item{}, nil, errors.Wrap(err, "querying roster")
	}
	return it, entries, nil
}
