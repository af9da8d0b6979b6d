package config

import (
	"fmt"
	"strings"
)

// Interpolate substitutes environment references in raw config text before
// decoding. Supported forms:
//
//	${NAME}          the variable's value; missing is a load-time error
//	${NAME:default}  the variable's value, or default when unset
//	\$               a literal dollar sign
func Interpolate(raw string, lookup func(string) (string, bool)) (string, error) {
	var sb strings.Builder
	sb.Grow(len(raw))

	i := 0
	for i < len(raw) {
		c := raw[i]

		if c == '\\' && i+1 < len(raw) && raw[i+1] == '$' {
			sb.WriteByte('$')
			i += 2
			continue
		}

		if c == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			end := strings.IndexByte(raw[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated ${ at byte %d", i)
			}

			ref := raw[i+2 : i+2+end]
			name, def, hasDefault := strings.Cut(ref, ":")
			if name == "" {
				return "", fmt.Errorf("empty variable name in ${%s}", ref)
			}

			value, ok := lookup(name)
			if !ok {
				if !hasDefault {
					return "", fmt.Errorf("environment variable %q is not set and has no default", name)
				}
				value = def
			}
			sb.WriteString(value)

			i += 2 + end + 1
			continue
		}

		sb.WriteByte(c)
		i++
	}

	return sb.String(), nil
}
