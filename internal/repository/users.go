// Package repository provides CRUD over user records persisted in the locked
// document store. All mutating operations run inside one exclusive section
// over the single user-list document; correctness over throughput.
package repository

import (
	"context"
	"errors"

	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/store"
)

// usersDocument is the on-disk layout: one document holding the full ordered
// user list.
const usersDocument = "users.json"

var (
	// ErrNotFound indicates no user matches the given id or email.
	ErrNotFound = errors.New("repository: user not found")
	// ErrDuplicateEmail indicates an insert with an email already present.
	ErrDuplicateEmail = errors.New("repository: email already registered")
)

// Users persists user records through the document store.
type Users struct {
	store *store.Store
}

// NewUsers constructs a Users repository over the given store.
func NewUsers(st *store.Store) *Users {
	return &Users{store: st}
}

// All returns every user. The read takes a shared lock; the snapshot may be
// stale by the time the caller acts on it.
func (r *Users) All(ctx context.Context) ([]models.User, error) {
	var out []models.User
	errView := store.ViewJSON(ctx, r.store, usersDocument, func(users []models.User) error {
		out = users
		return nil
	})
	if errView != nil {
		return nil, errView
	}
	return out, nil
}

// FindByID returns the user with the given id. Intended for non-mutating
// checks; reads that precede a write must use Update instead.
func (r *Users) FindByID(ctx context.Context, id string) (models.User, error) {
	users, errAll := r.All(ctx)
	if errAll != nil {
		return models.User{}, errAll
	}
	for _, user := range users {
		if user.ID == id {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// FindByEmail returns the user with the given email, compared exactly as
// stored.
func (r *Users) FindByEmail(ctx context.Context, email string) (models.User, error) {
	users, errAll := r.All(ctx)
	if errAll != nil {
		return models.User{}, errAll
	}
	for _, user := range users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// Insert appends a new user. The duplicate-email check runs inside the same
// exclusive section as the write, so two concurrent registrations for one
// email cannot both succeed.
func (r *Users) Insert(ctx context.Context, user models.User) error {
	return store.UpdateJSON(ctx, r.store, usersDocument, func(users *[]models.User) error {
		for _, existing := range *users {
			if existing.Email == user.Email {
				return ErrDuplicateEmail
			}
		}
		*users = append(*users, user)
		return nil
	})
}

// Save upserts the user by id.
func (r *Users) Save(ctx context.Context, user models.User) error {
	return store.UpdateJSON(ctx, r.store, usersDocument, func(users *[]models.User) error {
		for i := range *users {
			if (*users)[i].ID == user.ID {
				(*users)[i] = user
				return nil
			}
		}
		*users = append(*users, user)
		return nil
	})
}

// Update loads the user by id, applies fn, and persists the result, all
// inside one exclusive section. This is the read-modify-write primitive every
// handler uses to avoid lost updates.
func (r *Users) Update(ctx context.Context, id string, fn func(user *models.User) error) error {
	return store.UpdateJSON(ctx, r.store, usersDocument, func(users *[]models.User) error {
		for i := range *users {
			if (*users)[i].ID == id {
				return fn(&(*users)[i])
			}
		}
		return ErrNotFound
	})
}

// Delete removes the user by id.
func (r *Users) Delete(ctx context.Context, id string) error {
	return store.UpdateJSON(ctx, r.store, usersDocument, func(users *[]models.User) error {
		for i := range *users {
			if (*users)[i].ID == id {
				*users = append((*users)[:i], (*users)[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}
