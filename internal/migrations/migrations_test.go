package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsOrdersByVersionAndKeepsNames(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000010_approval_audit.up.sql":   {Data: []byte("CREATE TABLE audit ();")},
		"sql/000010_approval_audit.down.sql": {Data: []byte("DROP TABLE audit;")},
		"sql/000002_sessions.up.sql":         {Data: []byte("CREATE TABLE sessions ();")},
		"sql/000002_sessions.down.sql":       {Data: []byte("DROP TABLE sessions;")},
		"sql/README.md":                      {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 2 || items[0].Name != "sessions" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Version != 10 || items[1].Name != "approval_audit" {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[1].DownSQL != "DROP TABLE audit;" {
		t.Fatalf("items[1].DownSQL = %q", items[1].DownSQL)
	}
}

func TestLoadMigrationsRejectsIncompletePairs(t *testing.T) {
	cases := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{"sql/000001_sessions.up.sql": {Data: []byte("SELECT 1;")}},
			want: "missing down SQL",
		},
		{
			name: "blank up",
			fsys: fstest.MapFS{
				"sql/000001_sessions.up.sql":   {Data: []byte("  \n")},
				"sql/000001_sessions.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "missing up SQL",
		},
		{
			name: "mismatched names",
			fsys: fstest.MapFS{
				"sql/000001_sessions.up.sql":  {Data: []byte("SELECT 1;")},
				"sql/000001_session.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "mismatched names",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadMigrations(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("loadMigrations() error = %v, want %q", err, tc.want)
			}
		})
	}
}
