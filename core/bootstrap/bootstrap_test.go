package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/cozybot/core/config"
	coredatabase "github.com/m3rciful/cozybot/core/database"
)

func noopLogger(*coreconfig.Config) error { return nil }

func TestRunSkipsDatabaseWhenNotRequested(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			called = true
			return nil, nil
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.False(t, called)
	assert.NoError(t, res.Close())
}

func TestRunMigratesBeforeConnecting(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var order []string
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{Host: "db"},
		LoggerInit: noopLogger,
		Migrate: func(context.Context, coredatabase.Config) error {
			order = append(order, "migrate")
			return nil
		},
		Connect: func(_ context.Context, cfg coredatabase.Config) (*sqlx.DB, error) {
			order = append(order, "connect:"+cfg.Host)
			return sqlx.NewDb(raw, "postgres"), nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"migrate", "connect:db"}, order)
	require.NoError(t, res.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := Run(context.Background(), Options{})
	require.Error(t, err)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	require.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   &coredatabase.Config{},
		LoggerInit: noopLogger,
		Migrate:    func(context.Context, coredatabase.Config) error { return boom },
	})
	require.ErrorIs(t, err, boom)
}
