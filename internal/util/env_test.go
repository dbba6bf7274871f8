package util

import (
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CC_STRING", "mistral")
	t.Setenv("CC_EMPTY", "")
	t.Setenv("CC_NUMBER", "4.5")
	t.Setenv("CC_BAD_NUMBER", "four")
	t.Setenv("CC_BOOL", "true")
	t.Setenv("CC_BAD_BOOL", "yes")

	if got := GetEnv("CC_STRING"); got != "mistral" {
		t.Fatalf("GetEnv() = %q", got)
	}
	if got := GetEnv("CC_UNSET"); got != "" {
		t.Fatalf("GetEnv() unset = %q", got)
	}
	if got := GetEnvString("CC_EMPTY", "fallback"); got != "fallback" {
		t.Fatalf("GetEnvString() empty = %q", got)
	}
	if got := GetEnvNumeric("CC_NUMBER", 1); got != 4.5 {
		t.Fatalf("GetEnvNumeric() = %v", got)
	}
	if got := GetEnvNumeric("CC_BAD_NUMBER", 3); got != 3 {
		t.Fatalf("GetEnvNumeric() bad = %v", got)
	}
	if got := GetEnvBool("CC_BOOL", false); !got {
		t.Fatalf("GetEnvBool() = %v", got)
	}
	if got := GetEnvBool("CC_BAD_BOOL", false); got {
		t.Fatalf("GetEnvBool() bad = %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "90s", want: 90 * time.Second},
		{name: "minutes", value: "2m", want: 2 * time.Minute},
		{name: "bare seconds", value: "30", want: 30 * time.Second},
		{name: "invalid", value: "soon", want: time.Minute},
		{name: "empty", value: "", want: time.Minute},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CC_TIMEOUT", tc.value)
			if got := GetEnvDuration("CC_TIMEOUT", time.Minute); got != tc.want {
				t.Fatalf("GetEnvDuration(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
