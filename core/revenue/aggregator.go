package revenue

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/course"
	"github.com/trezcool/masomo-academy/core/ledger"
	"github.com/trezcool/masomo-academy/core/roster"
	"github.com/trezcool/masomo-academy/core/user"
)

type (
	AggregatorInterface interface {
		// Report builds the report of a teacher, or of all teachers when teacherID is empty.
		Report(ctx context.Context, teacherID string) ([]TeacherReport, error)
	}

	// Aggregator reads the ledger and the rosters; it never writes to either.
	Aggregator struct {
		ledger   ledger.Repository
		roster   roster.Repository
		catalog  course.ServiceInterface
		identity user.ServiceInterface
		logger   core.Logger
		workers  int
	}
)

var _ AggregatorInterface = (*Aggregator)(nil) // interface compliance check

func NewAggregator(
	ledgerRepo ledger.Repository,
	rosterRepo roster.Repository,
	catalog course.ServiceInterface,
	identity user.ServiceInterface,
	logger core.Logger,
) *Aggregator {
	return &Aggregator{
		ledger:   ledgerRepo,
		roster:   rosterRepo,
		catalog:  catalog,
		identity: identity,
		logger:   logger,
		workers:  4,
	}
}

func (agg *Aggregator) Report(ctx context.Context, teacherID string) ([]TeacherReport, error) {
	if teacherID != "" {
		tr, err := agg.teacherReport(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		return []TeacherReport{tr}, nil
	}

	teacherIDs, err := agg.catalog.QueryTeacherIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}

	reports := make([]TeacherReport, len(teacherIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(agg.workers)
	for i, id := range teacherIDs {
		i, id := i, id
		g.Go(func() error {
			tr, err := agg.teacherReport(gctx, id)
			if err != nil {
				return errors.Wrapf(err, "teacher %s", id)
			}
			reports[i] = tr
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (agg *Aggregator) teacherReport(ctx context.Context, teacherID string) (TeacherReport, error) {
	tr := TeacherReport{TeacherID: teacherID, Revenue: decimal.Zero, Courses: []CourseReport{}}
	if teacher, err := agg.identity.GetByID(ctx, teacherID); err == nil {
		tr.TeacherName = teacher.Name
	} else if errors.Cause(err) == user.ErrNotFound {
		agg.logger.Warn("revenue report of an unknown teacher", map[string]interface{}{"teacher_id": teacherID})
	} else {
		return tr, errors.Wrap(err, "getting teacher")
	}

	courses, err := agg.catalog.Query(ctx, course.QueryFilter{TeacherID: teacherID, Kind: course.KindCourse})
	if err != nil {
		return tr, errors.Wrap(err, "querying courses")
	}
	if len(courses) == 0 {
		return tr, nil
	}
	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}

	entries, err := agg.ledger.QueryEntries(ctx, ledger.QueryFilter{
		States:  []ledger.State{ledger.StateCompleted},
		ItemIDs: courseIDs,
	})
	if err != nil {
		return tr, errors.Wrap(err, "querying ledger")
	}
	rosterEntries, err := agg.roster.QueryEntries(ctx, courseIDs...)
	if err != nil {
		return tr, errors.Wrap(err, "querying rosters")
	}
	rosters := make(map[string][]roster.Entry, len(courses))
	for _, re := range rosterEntries {
		rosters[re.CourseID] = append(rosters[re.CourseID], re)
	}

	names := newNameResolver(agg.identity)
	for _, c := range courses {
		cr, err := merge(ctx, c, entries, rosters[c.ID], names)
		if err != nil {
			return tr, err
		}
		tr.Revenue = tr.Revenue.Add(cr.Revenue)
		tr.StudentCount += cr.StudentCount
		tr.Courses = append(tr.Courses, cr)
	}
	return tr, nil
}

// merge starts from the learners found in the ledger, then adds the roster learners missing from it.
// Learners are matched by identity only; the roster may hold historical duplicates.
func merge(ctx context.Context, c course.Item, entries []ledger.Entry, rosterEntries []roster.Entry, names *nameResolver) (CourseReport, error) {
	cr := CourseReport{CourseID: c.ID, Title: c.Title, Revenue: decimal.Zero, Learners: []LearnerRecord{}}

	snapshots := make(map[string]string, len(rosterEntries))
	for _, re := range rosterEntries {
		if re.LearnerName != "" {
			snapshots[re.LearnerID] = re.LearnerName
		}
	}

	index := make(map[string]int)
	for _, e := range entries {
		amount := e.AmountFor(c.ID)
		if amount.IsZero() {
			continue
		}
		cr.Revenue = cr.Revenue.Add(amount)
		if i, ok := index[e.LearnerID]; ok {
			rec := &cr.Learners[i]
			rec.Amount = rec.Amount.Add(amount)
			if e.CompletedAt != nil && (rec.PaidAt == nil || e.CompletedAt.Before(*rec.PaidAt)) {
				rec.PaidAt = e.CompletedAt
			}
			continue
		}
		index[e.LearnerID] = len(cr.Learners)
		cr.Learners = append(cr.Learners, LearnerRecord{
			LearnerID: e.LearnerID,
			Amount:    amount,
			PaidAt:    e.CompletedAt,
			Origin:    roster.OriginPaid,
		})
	}

	for _, re := range rosterEntries {
		if _, ok := index[re.LearnerID]; ok {
			continue
		}
		origin := re.Origin
		if origin == "" {
			origin = roster.OriginLegacy
		}
		index[re.LearnerID] = len(cr.Learners)
		cr.Learners = append(cr.Learners, LearnerRecord{
			LearnerID: re.LearnerID,
			Amount:    decimal.Zero,
			Origin:    origin,
		})
	}

	for i := range cr.Learners {
		rec := &cr.Learners[i]
		if name, ok := snapshots[rec.LearnerID]; ok {
			rec.Name = name
			continue
		}
		name, err := names.resolve(ctx, rec.LearnerID)
		if err != nil {
			return cr, err
		}
		rec.Name = name
	}

	sort.SliceStable(cr.Learners, func(i, j int) bool {
		return cr.Learners[i].Name < cr.Learners[j].Name
	})
	cr.StudentCount = len(cr.Learners)
	return cr, nil
}

// nameResolver caches the identity lookups of one report.
type nameResolver struct {
	identity user.ServiceInterface
	names    map[string]string
}

func newNameResolver(identity user.ServiceInterface) *nameResolver {
	return &nameResolver{identity: identity, names: make(map[string]string)}
}

func (nr *nameResolver) resolve(ctx context.Context, learnerID string) (string, error) {
	if name, ok := nr.names[learnerID]; ok {
		return name, nil
	}
	usr, err := nr.identity.GetByID(ctx, learnerID)
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return "", errors.Wrap(err, "getting learner")
	}
	nr.names[learnerID] = usr.Name
	return usr.Name, nil
}
