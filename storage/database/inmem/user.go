package inmemdb

import (
	"context"

	"github.com/trezcool/masomo-academy/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if isExcluded(*usr, excludedUsers) {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.table {
		if u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.table {
		for _, uname := range filter.UsernameOrEmail {
			if usr.Username == uname || usr.Email == uname {
				return *usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, excl := range excludedUsers {
		if excl.ID == usr.ID {
			return true
		}
	}
	return false
}
