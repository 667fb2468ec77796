package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/user"
)

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

// userRow is the "users" table; username and email are NULL rather than empty to keep them unique.
type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     sql.NullString `db:"username"`
	Email        sql.NullString `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    sql.NullTime   `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     sql.NullString{String: usr.Username, Valid: usr.Username != ""},
		Email:        sql.NullString{String: usr.Email, Valid: usr.Email != ""},
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    sql.NullTime{Time: usr.CreatedAt.UTC(), Valid: !usr.CreatedAt.IsZero()},
		UpdatedAt:    sql.NullTime{Time: usr.UpdatedAt.UTC(), Valid: !usr.UpdatedAt.IsZero()},
		LastLogin:    sql.NullTime{Time: usr.LastLogin.UTC(), Valid: !usr.LastLogin.IsZero()},
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.Time.UTC(),
		UpdatedAt:    row.UpdatedAt.Time.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

// trapUniqueErr maps the username / email unique violations to the user errors.
func trapUniqueErr(err error, msg string) error {
	if constraint, ok := uniqueViolationOn(err); ok {
		switch constraint {
		case "users_username_key":
			return user.ErrUsernameExists
		case "users_email_key":
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var row userRow
	q := "SELECT " + userColumns + ` FROM users
		WHERE (username = $1 OR email = $2) AND NOT (id = ANY($3::uuid[]))
		LIMIT 1`
	err := repo.exec.GetContext(ctx, &row, q, username, email, pq.Array(validUUIDs(ids)))
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && row.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := "INSERT INTO users (" + userColumns + `)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.exec.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		return user.User{}, trapUniqueErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var (
		row  userRow
		err  error
		cols = "SELECT " + userColumns + " FROM users "
	)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		err = repo.exec.GetContext(ctx, &row, cols+"WHERE id = $1", filter.ID)
	case len(filter.UsernameOrEmail) > 0:
		err = repo.exec.GetContext(ctx, &row, cols+"WHERE username = ANY($1) OR email = ANY($1) LIMIT 1", pq.Array(filter.UsernameOrEmail))
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET
		name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	res, err := repo.exec.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		return user.User{}, trapUniqueErr(err, "updating user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
