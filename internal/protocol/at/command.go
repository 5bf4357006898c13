package at

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandType distinguishes the four AT command syntaxes.
type CommandType int

const (
	// AT+NAME
	Exec CommandType = iota
	// AT+NAME?
	Read
	// AT+NAME=?
	Test
	// AT+NAME=a,b,c
	Set
)

func (t CommandType) String() string {
	switch t {
	case Exec:
		return "exec"
	case Read:
		return "read"
	case Test:
		return "test"
	case Set:
		return "set"
	default:
		return "unknown"
	}
}

// Command is one decoded HF command. Extended commands keep their leading
// '+' in Name (e.g. "+BRSF"); basic commands use the single letter ("A",
// "D").
type Command struct {
	Name string
	Type CommandType
	Args []string
}

// Is reports whether c has the given name and type.
func (c Command) Is(name string, typ CommandType) bool {
	return c.Name == name && c.Type == typ
}

// IntArg parses argument i as a decimal integer.
func (c Command) IntArg(i int) (int64, error) {
	if i < 0 || i >= len(c.Args) {
		return 0, fmt.Errorf("%w: %s missing argument %d", ErrUnparsable, c.Name, i)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(c.Args[i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s argument %d: %v", ErrUnparsable, c.Name, i, err)
	}
	return v, nil
}

// IntArgs parses every argument as a decimal integer.
func (c Command) IntArgs() ([]int64, error) {
	out := make([]int64, 0, len(c.Args))
	for i := range c.Args {
		v, err := c.IntArg(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// String renders the command as the HF would send it, without terminator.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString("AT")
	b.WriteString(c.Name)
	switch c.Type {
	case Read:
		b.WriteString("?")
	case Test:
		b.WriteString("=?")
	case Set:
		if strings.HasPrefix(c.Name, "+") {
			b.WriteString("=")
		}
		b.WriteString(strings.Join(c.Args, ","))
	}
	return b.String()
}

// ParseCommand decodes one command line (terminator already stripped).
func ParseCommand(line []byte) (Command, error) {
	s := strings.TrimSpace(string(line))
	if s == "" {
		return Command{}, ErrEmptyCommand
	}
	if len(s) < 2 || !strings.EqualFold(s[:2], "AT") {
		return Command{}, fmt.Errorf("%w: missing AT prefix %q", ErrUnparsable, s)
	}
	body := s[2:]
	if body == "" {
		return Command{}, fmt.Errorf("%w: bare AT", ErrUnparsable)
	}

	if body[0] != '+' {
		return parseBasic(body)
	}

	end := 1
	for end < len(body) && isNameChar(body[end]) {
		end++
	}
	if end == 1 {
		return Command{}, fmt.Errorf("%w: missing command name %q", ErrUnparsable, s)
	}
	cmd := Command{Name: strings.ToUpper(body[:end])}
	rest := body[end:]
	switch {
	case rest == "":
		cmd.Type = Exec
	case rest == "?":
		cmd.Type = Read
	case rest == "=?":
		cmd.Type = Test
	case strings.HasPrefix(rest, "="):
		cmd.Type = Set
		cmd.Args = splitArgs(rest[1:])
	default:
		return Command{}, fmt.Errorf("%w: trailing %q", ErrUnparsable, rest)
	}
	return cmd, nil
}

func parseBasic(body string) (Command, error) {
	c := body[0]
	if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
		return Command{}, fmt.Errorf("%w: basic command %q", ErrUnparsable, body)
	}
	cmd := Command{Name: strings.ToUpper(body[:1]), Type: Exec}
	if arg := strings.TrimSpace(body[1:]); arg != "" {
		cmd.Type = Set
		cmd.Args = []string{arg}
	}
	return cmd, nil
}

// splitArgs splits on commas outside double quotes. Empty positions are kept
// as empty strings so positional commands (AT+BIA) can see skip markers.
func splitArgs(raw string) []string {
	if raw == "" {
		return []string{}
	}
	out := make([]string, 0, 4)
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch == '"':
			quoted = !quoted
		case ch == ',' && !quoted:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(ch)
		}
	}
	out = append(out, strings.TrimSpace(cur.String()))
	return out
}

func isNameChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
