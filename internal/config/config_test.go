package config

import "testing"

func TestEnvHelpers(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		t.Setenv("LINGO_TEST_STR", "")
		if got := getEnv("LINGO_TEST_STR", "sqlite"); got != "sqlite" {
			t.Errorf("unset: got %q; want %q", got, "sqlite")
		}
		t.Setenv("LINGO_TEST_STR", "postgres")
		if got := getEnv("LINGO_TEST_STR", "sqlite"); got != "postgres" {
			t.Errorf("set: got %q; want %q", got, "postgres")
		}
	})

	ints := []struct {
		env  string
		want int
	}{
		{"", 7480},
		{"9000", 9000},
		{"0", 0},
		{"-1", -1},
		{"port", 7480},
	}
	for _, tt := range ints {
		t.Run("int "+tt.env, func(t *testing.T) {
			t.Setenv("LINGO_TEST_INT", tt.env)
			if got := getEnvInt("LINGO_TEST_INT", 7480); got != tt.want {
				t.Errorf("getEnvInt(%q) = %d; want %d", tt.env, got, tt.want)
			}
		})
	}

	bools := []struct {
		env  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"on", false, false},
	}
	for _, tt := range bools {
		t.Run("bool "+tt.env, func(t *testing.T) {
			t.Setenv("LINGO_TEST_BOOL", tt.env)
			if got := getEnvBool("LINGO_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v; want %v", tt.env, tt.def, got, tt.want)
			}
		})
	}
}
