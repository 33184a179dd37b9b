package domain

import (
	"fmt"
	"strings"
)

// Flag is one command-line option of a docker command.
type Flag struct {
	Name  string
	Value any
}

// Flags renders docker command-line options.
//
// A nil or false value is omitted, true renders a bare "--name", a list
// repeats the flag once per element and anything else renders "--name value".
type Flags []Flag

// Get returns the value of the first flag called name.
func (fs Flags) Get(name string) (any, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Args returns the rendered flags as separate, already quoted tokens.
func (fs Flags) Args() []string {
	var args []string
	for _, f := range fs {
		args = append(args, f.args()...)
	}
	return args
}

func (fs Flags) String() string {
	return strings.Join(fs.Args(), " ")
}

func (f Flag) args() []string {
	flag := "--" + f.Name
	switch v := f.Value.(type) {
	case nil:
		return nil
	case bool:
		if v {
			return []string{flag}
		}
		return nil
	case []string:
		args := make([]string, 0, 2*len(v))
		for _, item := range v {
			args = append(args, flag, Quote(item))
		}
		return args
	case []any:
		var args []string
		for _, item := range v {
			args = append(args, Flag{Name: f.Name, Value: item}.args()...)
		}
		return args
	default:
		return []string{flag, Quote(valueString(v))}
	}
}

func valueString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Quote wraps s in double quotes when it is empty or contains whitespace or
// quotes. Backslashes and double quotes inside are escaped.
func Quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\n\r\"'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// Command joins the non-empty parts with single spaces.
func Command(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// stringList normalizes a field value into its list form.
func stringList(v any) []string {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item != nil {
				out = append(out, valueString(item))
			}
		}
		return out
	default:
		return []string{valueString(v)}
	}
}
