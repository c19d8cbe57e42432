package game

import "strings"

// ParsedCommand is the normalized form of one input line: lowercased
// command name, quote-aware tokenized arguments, and the raw line.
type ParsedCommand struct {
	Command string
	Args    []string
	Raw     string
}

// Parse tokenizes an input line. The command name is lowercased;
// arguments keep their case. Double and single quotes group words, so
// `cat "quarterly report.txt"` yields one argument.
func Parse(input string) ParsedCommand {
	raw := input
	input = strings.TrimSpace(input)
	tokens := tokenize(input)
	pc := ParsedCommand{Raw: raw}
	if len(tokens) == 0 {
		return pc
	}
	pc.Command = strings.ToLower(tokens[0])
	pc.Args = tokens[1:]
	return pc
}

func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	var quote byte
	inToken := false

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '"' || c == '\'':
			quote = c
			inToken = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteByte(c)
			inToken = true
		}
	}
	flush()
	return tokens
}
