package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// postgres error codes
const uniqueViolation = "23505"

// uniqueViolationOn reports whether err is a unique constraint violation, returning the constraint name.
func uniqueViolationOn(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// trapNoRowsErr maps psql "no rows" err to the given sentinel
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// validUUIDs drops the ids that cannot match a UUID column.
func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// where accumulates AND-ed conditions with numbered placeholders.
type where struct {
	conds []string
	args  []interface{}
}

// add appends cond, where every "?" stands for arg.
func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
