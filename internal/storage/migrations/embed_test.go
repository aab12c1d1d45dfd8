package migrations

import (
	"testing"
	"testing/fstest"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_init.sql", 1, false},
		{"012_add_index.sql", 12, false},
		{"init.sql", 0, true},
		{"abc_init.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v; wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %d; want %d", tt.name, got, tt.want)
		}
	}
}

func TestLoad_Ordering(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql": {Data: []byte("B")},
		"m/001_a.sql": {Data: []byte("A")},
		"m/README.md": {Data: []byte("x")},
		"m/notes.sql": {Data: []byte("x")},
		"m/010_c.sql": {Data: []byte("C")},
	}

	files, err := Load(fsys, "m")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("len(files) = %d; want 3", len(files))
	}
	for i, want := range []int{1, 2, 10} {
		if files[i].Version != want {
			t.Errorf("files[%d].Version = %d; want %d", i, files[i].Version, want)
		}
	}
	if files[0].SQL != "A" {
		t.Errorf("files[0].SQL = %q; want A", files[0].SQL)
	}
}

func TestEmbedded(t *testing.T) {
	sqlite, err := Load(SQLite, "sqlite")
	if err != nil || len(sqlite) == 0 {
		t.Errorf("Load(SQLite) = %d files, %v", len(sqlite), err)
	}
	pg, err := Load(Postgres, "postgres")
	if err != nil || len(pg) == 0 {
		t.Errorf("Load(Postgres) = %d files, %v", len(pg), err)
	}
	if len(sqlite) != len(pg) {
		t.Errorf("backends have %d and %d migrations; want equal", len(sqlite), len(pg))
	}
}
