package roster

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

type (
	// LegacyMember is one element of an untagged roster: either a bare learner
	// reference (only LearnerID set) or a richer enrollment record.
	LegacyMember struct {
		LearnerID  string
		Name       string
		EnrolledAt time.Time
	}

	LegacyRoster struct {
		CourseID  string
		CreatedAt time.Time // used as enrolledAt when nothing better is known
		Members   []LegacyMember
	}

	// LegacySource reads the rosters stored in the historical formats.
	LegacySource interface {
		LegacyRosters(ctx context.Context) ([]LegacyRoster, error)
	}

	// PaidLookup finds the completed payment of a learner for a course, if any.
	PaidLookup func(ctx context.Context, courseID, learnerID string) (sessionID string, paidAt time.Time, found bool, err error)

	// NameLookup resolves a learner display name for bare references.
	NameLookup func(ctx context.Context, learnerID string) (string, error)

	MigrateOptions struct {
		Paid PaidLookup
		Name NameLookup
		Now  func() time.Time
	}

	MigrationReport struct {
		Courses    int
		Members    int
		Duplicates int
		Skipped    int
		Inserted   int
	}
)

// Migrate normalizes the legacy rosters into tagged entries. It only ever adds missing
// entries, so running it again is a no-op.
func Migrate(ctx context.Context, src LegacySource, dst Repository, opts MigrateOptions) (MigrationReport, error) {
	var report MigrationReport
	if opts.Now == nil {
		opts.Now = time.Now
	}

	rosters, err := src.LegacyRosters(ctx)
	if err != nil {
		return report, errors.Wrap(err, "reading legacy rosters")
	}

	for _, lr := range rosters {
		report.Courses++
		report.Members += len(lr.Members)

		members := dedupeMembers(lr.Members)
		report.Duplicates += len(lr.Members) - len(members)

		entries := make([]Entry, 0, len(members))
		for _, m := range members {
			if m.LearnerID == "" {
				report.Skipped++
				continue
			}
			entry, err := normalize(ctx, lr, m, opts)
			if err != nil {
				return report, errors.Wrapf(err, "normalizing learner %s of course %s", m.LearnerID, lr.CourseID)
			}
			entries = append(entries, entry)
		}
		if len(entries) == 0 {
			continue
		}

		added, err := dst.AddEntries(ctx, entries...)
		if err != nil {
			return report, errors.Wrapf(err, "adding roster entries of course %s", lr.CourseID)
		}
		report.Inserted += len(added)
	}
	return report, nil
}

// dedupeMembers keeps one member per learner: the earliest known enrollment, completed with any known name.
func dedupeMembers(members []LegacyMember) []LegacyMember {
	byLearner := make(map[string]LegacyMember, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		prev, ok := byLearner[m.LearnerID]
		if !ok {
			byLearner[m.LearnerID] = m
			order = append(order, m.LearnerID)
			continue
		}
		if prev.EnrolledAt.IsZero() || (!m.EnrolledAt.IsZero() && m.EnrolledAt.Before(prev.EnrolledAt)) {
			prev.EnrolledAt = m.EnrolledAt
		}
		if prev.Name == "" {
			prev.Name = m.Name
		}
		byLearner[m.LearnerID] = prev
	}

	deduped := make([]LegacyMember, 0, len(order))
	for _, id := range order {
		deduped = append(deduped, byLearner[id])
	}
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].LearnerID < deduped[j].LearnerID })
	return deduped
}

func normalize(ctx context.Context, lr LegacyRoster, m LegacyMember, opts MigrateOptions) (Entry, error) {
	entry := Entry{
		CourseID:    lr.CourseID,
		LearnerID:   m.LearnerID,
		LearnerName: m.Name,
		EnrolledAt:  m.EnrolledAt,
		Origin:      OriginLegacy,
	}

	if opts.Paid != nil {
		sessionID, paidAt, found, err := opts.Paid(ctx, lr.CourseID, m.LearnerID)
		if err != nil {
			return Entry{}, errors.Wrap(err, "looking up payment")
		}
		if found {
			entry.Origin = OriginPaid
			entry.SessionID = sessionID
			if entry.EnrolledAt.IsZero() {
				entry.EnrolledAt = paidAt
			}
		}
	}

	if entry.LearnerName == "" && opts.Name != nil {
		name, err := opts.Name(ctx, m.LearnerID)
		if err != nil {
			return Entry{}, errors.Wrap(err, "looking up learner name")
		}
		entry.LearnerName = name
	}

	if entry.EnrolledAt.IsZero() {
		entry.EnrolledAt = lr.CreatedAt
	}
	if entry.EnrolledAt.IsZero() {
		entry.EnrolledAt = opts.Now()
	}
	entry.EnrolledAt = entry.EnrolledAt.UTC()
	return entry, nil
}
