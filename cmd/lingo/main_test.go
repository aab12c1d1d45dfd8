package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig points the CLI at a fresh SQLite file.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  driver: sqlite\n  sqlite_path: " + filepath.Join(dir, "lingo.db") + "\n" +
		"events:\n  enabled: false\nredis:\n  enabled: false\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, env := range []string{"LINGO_STORAGE_DRIVER", "LINGO_SQLITE_PATH", "LINGO_EVENTS_ENABLED", "LINGO_REDIS_ENABLED", "LINGO_AUTH_ENABLED"} {
		t.Setenv(env, "")
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "lingo "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "migrate", "--config", cfg)
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "sqlite") {
		t.Errorf("output = %q; want driver name", out)
	}
}

func TestSeedThenDeck(t *testing.T) {
	cfg := writeConfig(t)
	seed := filepath.Join(t.TempDir(), "items.yaml")
	body := `items:
  - id: w-1
    lang: de
    level: B1
    exam: goethe
    skill_scope: [W]
    difficulty_elo: 1450
  - id: w-2
    lang: de
    level: B1
    exam: goethe
    skill_scope: [W]
    difficulty_elo: 1900
  - id: w-3
    lang: de
    level: B1
    exam: goethe
    skill_scope: [W]
    active: false
`
	if err := os.WriteFile(seed, []byte(body), 0644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	out, err := execute(t, "items", "seed", seed, "--config", cfg)
	if err != nil {
		t.Fatalf("items seed error = %v", err)
	}
	if !strings.Contains(out, "seeded 3 items") {
		t.Errorf("seed output = %q", out)
	}

	out, err = execute(t, "deck", "--config", cfg, "--user", "u1", "--lang", "de", "--level", "B1", "--exam", "goethe", "--skill", "W")
	if err != nil {
		t.Fatalf("deck error = %v", err)
	}
	first := strings.Index(out, "w-1")
	second := strings.Index(out, "w-2")
	if first < 0 || second < 0 || first > second {
		t.Errorf("deck output = %q; want w-1 before w-2", out)
	}
	if strings.Contains(out, "w-3") {
		t.Errorf("inactive item listed: %q", out)
	}
}

func TestRatingCommand(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "rating", "get", "--config", cfg, "--user", "u1", "--lang", "de", "--exam", "goethe", "--skill", "R")
	if err != nil {
		t.Fatalf("rating error = %v", err)
	}
	if !strings.Contains(out, `"rating": 1500`) {
		t.Errorf("output = %q; want default rating", out)
	}

	if _, err := execute(t, "rating", "get", "--config", cfg, "--user", "u1"); err == nil {
		t.Error("rating without lang should fail")
	}
}

func TestParseItems(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		check   func(t *testing.T, n int, active bool, elo float64)
	}{
		{
			name: "defaults",
			yaml: "items:\n  - id: a\n    lang: de\n",
			check: func(t *testing.T, n int, active bool, elo float64) {
				if n != 1 || !active || elo != 1500 {
					t.Errorf("got n=%d active=%v elo=%v; want 1 true 1500", n, active, elo)
				}
			},
		},
		{name: "missing id", yaml: "items:\n  - lang: de\n", wantErr: "id is required"},
		{name: "duplicate", yaml: "items:\n  - id: a\n  - id: a\n", wantErr: "duplicate"},
		{name: "bad yaml", yaml: "items: [", wantErr: "parse seed file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseItems(strings.NewReader(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseItems() error = %v; want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseItems() error = %v", err)
			}
			tt.check(t, len(items), items[0].Active, items[0].DifficultyElo)
		})
	}
}
