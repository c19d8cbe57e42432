package game

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		command string
		args    []string
	}{
		{"empty", "", "", nil},
		{"whitespace only", "   \t ", "", nil},
		{"bare command", "help", "help", nil},
		{"command lowercased", "HELP", "help", nil},
		{"args keep case", "cat README.txt", "cat", []string{"README.txt"}},
		{"multiple args", "mail read 2", "mail", []string{"read", "2"}},
		{"extra spaces collapse", "ssh    server-01", "ssh", []string{"server-01"}},
		{"double quotes group", `cat "quarterly report.txt"`, "cat", []string{"quarterly report.txt"}},
		{"single quotes group", "cat 'two words'", "cat", []string{"two words"}},
		{"quotes mid token", `cat re"port".txt`, "cat", []string{"report.txt"}},
		{"tabs separate", "scan\tacme", "scan", []string{"acme"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := Parse(tt.input)
			if pc.Command != tt.command {
				t.Errorf("command = %q, want %q", pc.Command, tt.command)
			}
			if len(pc.Args) == 0 && len(tt.args) == 0 {
				return
			}
			if !reflect.DeepEqual(pc.Args, tt.args) {
				t.Errorf("args = %v, want %v", pc.Args, tt.args)
			}
		})
	}
}

func TestParseKeepsRaw(t *testing.T) {
	pc := Parse("  SSH server-01  ")
	if pc.Raw != "  SSH server-01  " {
		t.Errorf("raw = %q", pc.Raw)
	}
}
