package mongodb

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/trezcool/masomo-academy/core/user"
)

type userRepository struct {
	col *mongo.Collection
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *mongo.Database) user.Repository {
	return &userRepository{col: db.Collection(colUsers)}
}

type userModel struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Username     string    `bson:"username,omitempty"`
	Email        string    `bson:"email,omitempty"`
	IsActive     bool      `bson:"is_active"`
	Roles        []string  `bson:"roles"`
	PasswordHash []byte    `bson:"password_hash,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
	LastLogin    time.Time `bson:"last_login,omitempty"`
}

func toUserModel(usr user.User) userModel {
	return userModel{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        usr.Roles,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    usr.LastLogin.UTC(),
	}
}

func (m userModel) user() user.User {
	usr := user.User{
		ID:           m.ID,
		Name:         m.Name,
		Username:     m.Username,
		Email:        m.Email,
		IsActive:     m.IsActive,
		Roles:        m.Roles,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if !m.LastLogin.IsZero() {
		usr.LastLogin = m.LastLogin.UTC()
	}
	return usr
}

// trapDuplicateKeyErr maps the username / email unique index violations to the user errors.
func trapDuplicateKeyErr(err error, msg string) error {
	if mongo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), "username") {
			return user.ErrUsernameExists
		}
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var or bson.A
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil
	}

	var m userModel
	err := repo.col.FindOne(ctx, bson.M{"$or": or, "_id": bson.M{"$nin": ids}}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && m.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if _, err := repo.col.InsertOne(ctx, toUserModel(usr)); err != nil {
		return user.User{}, trapDuplicateKeyErr(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case len(filter.UsernameOrEmail) > 0:
		q = bson.M{"$or": bson.A{
			bson.M{"username": bson.M{"$in": filter.UsernameOrEmail}},
			bson.M{"email": bson.M{"$in": filter.UsernameOrEmail}},
		}}
	default:
		return user.User{}, user.ErrNotFound
	}

	var m userModel
	if err := repo.col.FindOne(ctx, q).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return m.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.col.ReplaceOne(ctx, bson.M{"_id": usr.ID}, toUserModel(usr))
	if err != nil {
		return user.User{}, trapDuplicateKeyErr(err, "updating user")
	}
	if res.MatchedCount == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
