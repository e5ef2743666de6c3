package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"projectflow/internal/db"
	"projectflow/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker not available")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("projectflow"),
		postgres.WithUsername("projectflow"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "postgres container should start")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool), "migrations should apply")
	return pool
}

func newUser(email string) domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "$2a$12$hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPgUserRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewPgUserRepository(pool)
	ctx := context.Background()

	user := newUser("ada@example.com")
	require.NoError(t, repo.Create(ctx, user))

	t.Run("lookup by email is case insensitive", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "ADA@example.com")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
		require.True(t, got.IsActive)
		require.Empty(t, got.Phone)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		err := repo.Create(ctx, newUser("Ada@Example.com"))
		require.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrUserNotFound)

		err = repo.UpdatePassword(ctx, uuid.NewString(), "x")
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("update password and deactivate", func(t *testing.T) {
		require.NoError(t, repo.UpdatePassword(ctx, user.ID, "$2a$12$other"))
		require.NoError(t, repo.SetActive(ctx, user.ID, false))

		got, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "$2a$12$other", got.PasswordHash)
		require.False(t, got.IsActive)
	})

	t.Run("partial profile update", func(t *testing.T) {
		phone := "+34 600 000 000"
		got, err := repo.UpdateProfile(ctx, user.ID, domain.ProfileUpdate{Phone: &phone})
		require.NoError(t, err)
		require.Equal(t, phone, got.Phone)
		require.Equal(t, "Ada", got.FirstName, "untouched fields keep their value")
	})
}
