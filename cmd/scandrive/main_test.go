package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalPrompt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"code with newline", "4/abc\n", "4/abc", false},
		{"code without newline", "  4/xyz  ", "4/xyz", false},
		{"empty line", "\n", "", true},
		{"no input", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code, err := terminalPrompt(strings.NewReader(tt.input), &out)("https://accounts.test/auth")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if code != tt.want {
				t.Errorf("Expected code '%s', got '%s'", tt.want, code)
			}
			if !strings.Contains(out.String(), "https://accounts.test/auth") {
				t.Errorf("Expected the auth URL to be printed, got %q", out.String())
			}
		})
	}
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()
	for _, path := range [][]string{
		{"auth", "login"},
		{"auth", "logout"},
		{"auth", "status"},
		{"sync"},
		{"files", "list"},
		{"files", "delete"},
		{"files", "pdf"},
		{"files", "export"},
		{"scan"},
		{"effect"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("Expected command %v, got %v (%v)", path, cmd, err)
		}
	}
}

func TestEffectCommand_RejectsBadParams(t *testing.T) {
	root := newRootCommand()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"effect", "--colorspace", "sepia", "missing.pdf"})
	if err := root.Execute(); err == nil {
		t.Error("Expected an error for an unknown colorspace")
	}
}
