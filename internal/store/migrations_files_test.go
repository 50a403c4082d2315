package store

import (
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"clientflow/api/db"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := fs.ReadDir(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", name)
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestUpMigrationsAreSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"m/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"m/0001_a.down.sql": {Data: []byte("SELECT 0")},
		"m/README":          {Data: []byte("ignored")},
	}

	files, err := upMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("upMigrations() error = %v", err)
	}
	want := []string{"m/0001_a.up.sql", "m/0002_b.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("files = %v, want %v", files, want)
		}
	}
}
