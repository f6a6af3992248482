package main

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqlFS(names ...string) fstest.MapFS {
	m := fstest.MapFS{}
	for _, name := range names {
		m[name] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	}

	return m
}

func TestCatalogFiles(t *testing.T) {
	catalog := NewCatalog(sqlFS(
		"002_add_things.up.sql",
		"002_add_things.down.sql",
		"001_init.up.sql",
		"001_init.down.sql",
		"README.md",
	))

	files, err := catalog.Files()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"001_init.down.sql",
		"001_init.up.sql",
		"002_add_things.down.sql",
		"002_add_things.up.sql",
	}, files)
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr string
	}{
		{
			name:  "valid pair",
			files: []string{"001_init.up.sql", "001_init.down.sql"},
		},
		{
			name:  "valid multi sequence",
			files: []string{"001_a.up.sql", "001_a.down.sql", "002_b.up.sql", "002_b.down.sql"},
		},
		{
			name:    "empty catalog",
			files:   nil,
			wantErr: "no migration files",
		},
		{
			name:    "missing down file",
			files:   []string{"001_init.up.sql"},
			wantErr: "no down file",
		},
		{
			name:    "missing up file",
			files:   []string{"001_init.down.sql"},
			wantErr: "no up file",
		},
		{
			name:    "sequence does not start at one",
			files:   []string{"002_b.up.sql", "002_b.down.sql"},
			wantErr: "starts at 002",
		},
		{
			name: "gap in sequence",
			files: []string{
				"001_a.up.sql", "001_a.down.sql",
				"003_c.up.sql", "003_c.down.sql",
			},
			wantErr: "gap in migration sequence",
		},
		{
			name:    "stray sql file",
			files:   []string{"001_a.up.sql", "001_a.down.sql", "1_bad-name.up.sql"},
			wantErr: "does not match",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCatalog(sqlFS(tt.files...)).Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCatalogChecksumPinning(t *testing.T) {
	files := sqlFS("001_init.up.sql", "001_init.down.sql")
	catalog := NewCatalog(files)

	require.NoError(t, catalog.Validate())

	// Unchanged files revalidate cleanly.
	require.NoError(t, catalog.Validate())

	files["001_init.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 2;")}

	err := catalog.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestParseFilename(t *testing.T) {
	m, err := parseFilename("004_create_processed_products.up.sql")
	require.NoError(t, err)

	assert.Equal(t, 4, m.Sequence)
	assert.Equal(t, "create_processed_products", m.Name)
	assert.Equal(t, "up", m.Direction)

	_, err = parseFilename("create_processed_products.sql")
	assert.Error(t, err)
}

// The SQL embedded in this binary must itself pass every check.
func TestEmbeddedCatalogIsValid(t *testing.T) {
	catalog := NewCatalog(nil)

	require.NoError(t, catalog.Validate())

	files, err := catalog.Files()
	require.NoError(t, err)
	assert.Len(t, files, 14, "seven up/down pairs")
	assert.Equal(t, 7, catalog.MaxSequence())

	content, err := catalog.Content("004_create_processed_products.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(content), "processed.products")
}
