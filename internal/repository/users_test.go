package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/store"
)

func newTestRepo(t *testing.T) *Users {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return NewUsers(st)
}

func TestInsertAndFind(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user := models.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Plan: models.PlanFree}
	if errInsert := repo.Insert(ctx, user); errInsert != nil {
		t.Fatalf("insert: %v", errInsert)
	}

	byID, errByID := repo.FindByID(ctx, "u1")
	if errByID != nil {
		t.Fatalf("find by id: %v", errByID)
	}
	if byID.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byEmail, errByEmail := repo.FindByEmail(ctx, "ada@example.com")
	if errByEmail != nil {
		t.Fatalf("find by email: %v", errByEmail)
	}
	if byEmail.ID != "u1" {
		t.Fatalf("unexpected user: %+v", byEmail)
	}

	if _, errMissing := repo.FindByID(ctx, "nope"); !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errMissing)
	}
}

func TestInsert_DuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if errInsert := repo.Insert(ctx, models.User{ID: "u1", Email: "dup@example.com"}); errInsert != nil {
		t.Fatalf("insert: %v", errInsert)
	}
	errDup := repo.Insert(ctx, models.User{ID: "u2", Email: "dup@example.com"})
	if !errors.Is(errDup, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", errDup)
	}
}

func TestFindByEmail_CaseSensitive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if errInsert := repo.Insert(ctx, models.User{ID: "u1", Email: "Ada@Example.com"}); errInsert != nil {
		t.Fatalf("insert: %v", errInsert)
	}
	if _, errFind := repo.FindByEmail(ctx, "ada@example.com"); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("email lookup must be case-sensitive, got %v", errFind)
	}
}

func TestConcurrentSaves_DistinctUsersKeepLatestVersions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := models.User{
				ID:    fmt.Sprintf("u%d", n),
				Email: fmt.Sprintf("u%d@example.com", n),
				Name:  fmt.Sprintf("user %d", n),
			}
			if errSave := repo.Save(ctx, user); errSave != nil {
				t.Errorf("save u%d: %v", n, errSave)
			}
		}(i)
	}
	wg.Wait()

	users, errAll := repo.All(ctx)
	if errAll != nil {
		t.Fatalf("all: %v", errAll)
	}
	if len(users) != writers {
		t.Fatalf("expected %d users after concurrent saves, got %d", writers, len(users))
	}
}

func TestUpdate_ReadModifyWriteIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if errInsert := repo.Insert(ctx, models.User{ID: "u1", Email: "a@example.com"}); errInsert != nil {
		t.Fatalf("insert: %v", errInsert)
	}

	const increments = 30
	var wg sync.WaitGroup
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errUpdate := repo.Update(ctx, "u1", func(user *models.User) error {
				user.Usage.Messages++
				return nil
			})
			if errUpdate != nil {
				t.Errorf("update: %v", errUpdate)
			}
		}()
	}
	wg.Wait()

	user, errFind := repo.FindByID(ctx, "u1")
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if user.Usage.Messages != increments {
		t.Fatalf("lost update: expected %d messages, got %d", increments, user.Usage.Messages)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if errInsert := repo.Insert(ctx, models.User{ID: "u1", Email: "a@example.com"}); errInsert != nil {
		t.Fatalf("insert: %v", errInsert)
	}
	if errDelete := repo.Delete(ctx, "u1"); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, errFind := repo.FindByID(ctx, "u1"); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", errFind)
	}
	if errAgain := repo.Delete(ctx, "u1"); !errors.Is(errAgain, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", errAgain)
	}
}
