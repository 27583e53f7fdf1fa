package schema

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
)

const testCatalog = `
version: test-1
dialect: PostgreSQL
tables:
  - name: nhanvien
    columns:
      - {name: id, type: INT}
      - {name: ho_ten, type: VARCHAR}
      - {name: phong_ban_id, type: INT}
  - name: cham_cong
    columns:
      - {name: nhanvien_id, type: INT}
      - {name: check_in, type: TIME}
  - name: luong
    columns:
      - {name: nhanvien_id, type: INT}
`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "hrm.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE nhanvien (id INTEGER PRIMARY KEY, HO_TEN TEXT)`,
		`CREATE TABLE cham_cong (nhanvien_id INTEGER, check_in TEXT, check_out TEXT)`,
		`CREATE TABLE audit_log (id INTEGER)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

func TestInspectSQLite(t *testing.T) {
	db := openTestDB(t)

	tables, err := Inspect(context.Background(), db, "sqlite")
	require.NoError(t, err)
	require.Len(t, tables, 3)

	assert.Equal(t, "audit_log", tables[0].Name)
	assert.Equal(t, "cham_cong", tables[1].Name)
	assert.Equal(t, []Column{
		{Name: "nhanvien_id", Type: "INTEGER"},
		{Name: "check_in", Type: "TEXT"},
		{Name: "check_out", Type: "TEXT"},
	}, tables[1].Columns)
}

func TestInspectUnsupportedDriver(t *testing.T) {
	_, err := Inspect(context.Background(), nil, "mysql")
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestDiff(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	tables, err := Inspect(context.Background(), openTestDB(t), "sqlite")
	require.NoError(t, err)

	drift := Diff(cat, tables)
	assert.Equal(t, []Drift{
		{Table: "nhanvien", Column: "phong_ban_id", Problem: MissingColumn},
		{Table: "luong", Problem: MissingTable},
	}, drift)
	assert.Equal(t, "missing column: nhanvien.phong_ban_id", drift[0].String())
	assert.Equal(t, "missing table: luong", drift[1].String())
}

func TestDiffClean(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	live := []Table{
		{Name: "NHANVIEN", Columns: []Column{{Name: "id"}, {Name: "ho_ten"}, {Name: "phong_ban_id"}}},
		{Name: "cham_cong", Columns: []Column{{Name: "nhanvien_id"}, {Name: "check_in"}}},
		{Name: "luong", Columns: []Column{{Name: "nhanvien_id"}}},
	}
	assert.Empty(t, Diff(cat, live))
}
