package migrations

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    []string
		wantErr bool
	}{
		{
			name: "comments dropped",
			script: `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
`,
			want: []string{
				"CREATE TABLE a (x UInt8) ENGINE = Memory",
				"CREATE TABLE b (y String) ENGINE = Memory",
			},
		},
		{
			name:   "semicolon in literal",
			script: `SELECT 'a;b'; SELECT 'it''s -- fine';`,
			want:   []string{`SELECT 'a;b'`, `SELECT 'it''s -- fine'`},
		},
		{
			name:   "backslash escape",
			script: `SELECT 'x\';y'`,
			want:   []string{`SELECT 'x\';y'`},
		},
		{
			name:   "trailing comment without newline",
			script: "SELECT 1; -- done",
			want:   []string{"SELECT 1"},
		},
		{name: "unterminated", script: "SELECT 'oops", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitStatements(tt.script)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUnterminatedLiteral)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default@localhost:9000/ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE t (x);\n-- +migrate Down\nDROP TABLE t;\n"
	up := upSection(content)
	assert.Contains(t, up, "CREATE TABLE t")
	assert.NotContains(t, up, "DROP TABLE")
	assert.Equal(t, "SELECT 1;", upSection("SELECT 1;"))
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("SELECT 2;")},
		"pg/001_a.sql":   {Data: []byte("SELECT 1;")},
		"pg/003_nop.sql": {Data: []byte("\n  \n")},
		"pg/README.md":   {Data: []byte("notes")},
	}
	files, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "001_a.sql", files[0].name)
	assert.Equal(t, "SELECT 2;", files[1].sql)
}

func TestEmbeddedMigrations(t *testing.T) {
	for dir, fsys := range map[string]fs.FS{
		"postgres":   PostgresFS,
		"clickhouse": ClickhouseFS,
		"sqlite":     SQLiteFS,
	} {
		files, err := load(fsys, dir)
		require.NoError(t, err, dir)
		assert.NotEmpty(t, files, dir)
	}

	files, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	for _, m := range files {
		stmts, err := splitStatements(m.sql)
		require.NoError(t, err, m.name)
		assert.NotEmpty(t, stmts, m.name)
	}
}
