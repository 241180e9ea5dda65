package main

import "testing"

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, 0},
		{"version", []string{"--version"}, 0},
		{"unknown flag", []string{"--bogus"}, 2},
		{"invalid log level", []string{"-d", t.TempDir(), "--log-level", "loud"}, 1},
		{"invalid timeout", []string{"-d", t.TempDir(), "--timeout", "soon"}, 2},
		{"missing config file", []string{"-c", "/nonexistent/wc3bridge.toml"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}
