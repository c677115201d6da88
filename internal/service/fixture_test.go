package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lendingledger/internal/logging"
	"lendingledger/internal/model"
	"lendingledger/internal/repository"
	"lendingledger/internal/session"
	"lendingledger/internal/testutil"
)

type fixture struct {
	users   repository.UserRepository
	items   repository.LoanItemRepository
	modes   repository.ModeStore
	userSvc UserService
	loanSvc LoanService
	modeSvc ModeService
}

// newFixture returns services over a fresh database holding the initial
// admin plus the regular users bob and sally.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB := testutil.NewDB(t)
	log := logging.Discard()

	f := &fixture{
		users: repository.NewUserRepository(gormDB),
		items: repository.NewLoanItemRepository(gormDB),
		modes: repository.NewMemoryModeStore(model.DefaultMode),
	}
	f.userSvc = NewUserService(f.users, log)
	f.loanSvc = NewLoanService(f.items, f.users, f.modes, log)
	f.modeSvc = NewModeService(f.modes, f.users, log)

	ctx := context.Background()
	created, err := f.userSvc.CreateInitialAdmin(ctx, "admin")
	require.NoError(t, err)
	require.True(t, created)
	_, err = f.userSvc.Register(ctx, "bob", "password", "+441234567890")
	require.NoError(t, err)
	_, err = f.userSvc.Register(ctx, "sally", "cats", "+441234567890")
	require.NoError(t, err)
	return f
}

func as(username string) context.Context {
	return session.WithSession(context.Background(), session.Session{Username: username})
}

func strPtr(s string) *string { return &s }
