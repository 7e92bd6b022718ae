package tmuxctl

import "strings"

// QuoteArg single-quotes a command-mode argument for transmission over the
// control-mode pipe, the same way a POSIX shell would: every embedded
// single quote is replaced by '\'' (close quote, escaped literal quote,
// reopen quote). The result is injective on printable ASCII input per §8:
// distinct args never quote to the same wire string, and unquoting always
// recovers the original.
func QuoteArg(arg string) string {
	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(arg); i++ {
		if arg[i] == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteByte(arg[i])
	}
	b.WriteByte('\'')
	return b.String()
}

// QuoteCommand joins a command name and its arguments into a single
// control-mode command line: the name is passed unquoted (it is always a
// fixed keyword, never user data), each argument is quoted with QuoteArg.
func QuoteCommand(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, QuoteArg(a))
	}
	return strings.Join(parts, " ")
}
