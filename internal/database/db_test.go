package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesmith/notesmith/internal/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
	}{
		{
			name: "creates connection with valid config",
			cfg: config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				Database: "testdb",
				Username: "testuser",
				Password: "testpass",
			},
		},
		{
			name: "creates connection with pool settings",
			cfg: config.DatabaseConfig{
				Host:            "db.example.com",
				Port:            3307,
				Database:        "notesmith",
				Username:        "admin",
				Password:        "secret",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 300,
			},
		},
		{
			name: "creates connection with custom params",
			cfg: config.DatabaseConfig{
				Host:     "localhost",
				Port:     3306,
				Database: "testdb",
				Username: "testuser",
				Params:   map[string]string{"charset": "utf8mb4"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, db)
			assert.NoError(t, db.Close())
		})
	}
}

func TestRunInTx(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		fn        func(ctx context.Context, tx *sqlx.Tx) error
		wantErr   string
	}{
		{
			name: "commits when fn succeeds",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE notes").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			fn: func(ctx context.Context, tx *sqlx.Tx) error {
				_, err := tx.ExecContext(ctx, "UPDATE notes SET title = ?", "t")
				return err
			},
		},
		{
			name: "rolls back when fn fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn: func(ctx context.Context, tx *sqlx.Tx) error {
				return fmt.Errorf("boom")
			},
			wantErr: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer mockDB.Close()
			tt.setupMock(mock)

			db := sqlx.NewDb(mockDB, "mysql")
			err = RunInTx(context.Background(), db, tt.fn)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
