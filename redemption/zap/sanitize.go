package zap

import (
	"strings"
)

// controlCharReplacer escapes control characters that can forge log entries
// (CWE-117). A newline inside a message would otherwise start what looks like
// a fresh entry under the console encoder, corrupting audit trails.
//
// The JSON encoder already escapes these inside string values, so this guard
// matters mostly for development environments running console output.
var controlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// sanitizeString escapes control characters in a single string value.
func sanitizeString(s string) string {
	return controlCharReplacer.Replace(s)
}
