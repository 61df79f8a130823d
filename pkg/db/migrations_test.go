package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMigrationName(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_live_insights.sql", "0001", "live_insights", true},
		{"0002_indexed_content.sql", "0002", "indexed_content", true},
		{"10_short.sql", "10", "short", true},
		{"nodigits_name.sql", "", "", false},
		{"0003.sql", "", "", false},
		{"0004_.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := splitMigrationName(tt.filename)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_second.sql": {Data: []byte("SELECT 2")},
		"migrations/0001_first.sql":  {Data: []byte("SELECT 1")},
		"migrations/notes.txt":       {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001", migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "SELECT 1", migrations[0].SQL)
	assert.Equal(t, "0002", migrations[1].Version)
}

func TestLoadMigrations_RejectsMalformedName(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/badname.sql": {Data: []byte("SELECT 1")},
	}

	_, err := loadMigrations(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed migration filename")
}

func TestEmbeddedMigrations_ParseCleanly(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	seen := make(map[string]bool)
	for _, m := range migrations {
		assert.False(t, seen[m.Version], "duplicate version %s", m.Version)
		seen[m.Version] = true
		assert.NotEmpty(t, m.SQL)
	}
}
