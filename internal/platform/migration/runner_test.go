// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/bazaar/internal/platform/migration"
)

func TestToPgx5DSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"postgres_scheme", "postgres://u:p@db:5432/bazaar", "pgx5://u:p@db:5432/bazaar"},
		{"postgresql_scheme", "postgresql://u:p@db/bazaar?sslmode=disable", "pgx5://u:p@db/bazaar?sslmode=disable"},
		{"already_pgx5", "pgx5://db/bazaar", "pgx5://db/bazaar"},
		{"keyword_dsn", "host=db dbname=bazaar", "host=db dbname=bazaar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.ToPgx5DSN(tt.in))
		})
	}
}
