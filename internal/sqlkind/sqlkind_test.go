package sqlkind

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		sql  string
		want Kind
	}{
		{"SELECT * FROM users;", Select},
		{"  select id from users", Select},
		{"(SELECT 1) UNION ALL (SELECT 2);", Select},
		{"-- list users\nSELECT * FROM users;", Select},
		{"/* audit */ INSERT INTO users (name) VALUES ('a');", Insert},
		{"insert into users values (1)", Insert},
		{"REPLACE INTO users VALUES (1)", Insert},
		{"UPDATE users SET name = 'b' WHERE id = 1;", Update},
		{"DELETE FROM users WHERE id = 1;", Delete},
		{"DROP TABLE users;", DDL},
		{"create table t (id int);", DDL},
		{"ALTER TABLE users ADD COLUMN age int;", DDL},
		{"TRUNCATE TABLE users;", DDL},
		{"WITH recent AS (SELECT * FROM orders) SELECT * FROM recent;", Select},
		{"WITH gone AS (DELETE FROM orders RETURNING *) SELECT count(*) FROM gone;", Delete},
		{"PRAGMA table_info(users);", Other},
		{"", Other},
		{";", Other},
	}
	for _, tc := range cases {
		if got := Detect(tc.sql); got != tc.want {
			t.Fatalf("Detect(%q) = %s, want %s", tc.sql, got, tc.want)
		}
	}
}

func TestIsMutation(t *testing.T) {
	for _, kind := range []Kind{Insert, Update, Delete} {
		if !kind.IsMutation() {
			t.Fatalf("%s should be a mutation", kind)
		}
	}
	for _, kind := range []Kind{Select, DDL, Other} {
		if kind.IsMutation() {
			t.Fatalf("%s should not be a mutation", kind)
		}
	}
}
