// Package config loads chartd.yaml.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} with the variable's value and ${VAR:-default}
// with the value, or default when the variable is unset or empty.
// Unset variables without a default expand to the empty string; required
// values then fail in Validate. Bare $VAR is left alone.
func ExpandEnv(input string) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value == "" && m[4] >= 0 {
			value = input[m[4]:m[5]]
		}
		b.WriteString(value)
		last = m[1]
	}
	b.WriteString(input[last:])
	return b.String()
}
