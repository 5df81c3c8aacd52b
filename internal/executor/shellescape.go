package executor

import "strings"

// ShellEscape wraps s in single quotes, escaping any embedded single quote
// as '\'' so the result is safe to splice into a POSIX shell command line.
func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
