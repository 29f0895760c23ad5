package app

import (
	"testing"
	"time"
)

func TestEnvSeconds(t *testing.T) {
	cases := []struct {
		raw  string
		def  time.Duration
		want time.Duration
	}{
		{raw: "", def: 5 * time.Second, want: 5 * time.Second},
		{raw: "90", def: 5 * time.Second, want: 90 * time.Second},
		// Zero is meaningful (never rotate), not a parse failure.
		{raw: "0", def: 24 * time.Hour, want: 0},
		{raw: "-3", def: 5 * time.Second, want: 5 * time.Second},
		{raw: "ninety", def: 5 * time.Second, want: 5 * time.Second},
		{raw: "2592000", def: time.Second, want: 30 * 24 * time.Hour},
	}

	for _, tc := range cases {
		t.Setenv("GOBAN_ENV_TEST_SECS", tc.raw)
		if got := EnvSeconds("GOBAN_ENV_TEST_SECS", tc.def); got != tc.want {
			t.Fatalf("EnvSeconds(%q)=%v want=%v", tc.raw, got, tc.want)
		}
	}
}

func TestEnvCSV(t *testing.T) {
	def := []string{"*"}

	cases := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: []string{"*"}},
		{raw: "https://a.example.com", want: []string{"https://a.example.com"}},
		{raw: " a , b ,, c ", want: []string{"a", "b", "c"}},
		{raw: " , ,", want: []string{"*"}},
	}

	for _, tc := range cases {
		t.Setenv("GOBAN_ENV_TEST_CSV", tc.raw)
		got := EnvCSV("GOBAN_ENV_TEST_CSV", def)
		if len(got) != len(tc.want) {
			t.Fatalf("EnvCSV(%q)=%v want=%v", tc.raw, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("EnvCSV(%q)[%d]=%q want=%q", tc.raw, i, got[i], tc.want[i])
			}
		}
	}
}

func TestEnvInt64(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{raw: "", want: 65536},
		{raw: "1024", want: 1024},
		{raw: "0", want: 65536},
		{raw: "-1", want: 65536},
		{raw: "lots", want: 65536},
	}

	for _, tc := range cases {
		t.Setenv("GOBAN_ENV_TEST_INT64", tc.raw)
		if got := EnvInt64("GOBAN_ENV_TEST_INT64", 65536); got != tc.want {
			t.Fatalf("EnvInt64(%q)=%d want=%d", tc.raw, got, tc.want)
		}
	}
}

func TestEnvDurationZeroKeepsDefault(t *testing.T) {
	t.Setenv("GOBAN_ENV_TEST_DUR", "0")
	if got := EnvDuration("GOBAN_ENV_TEST_DUR", 0); got != 0 {
		t.Fatalf("EnvDuration zero default: %v", got)
	}

	t.Setenv("GOBAN_ENV_TEST_DUR", "45s")
	if got := EnvDuration("GOBAN_ENV_TEST_DUR", 0); got != 45*time.Second {
		t.Fatalf("EnvDuration=%v want=45s", got)
	}
}
