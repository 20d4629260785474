/*
Copyright 2018 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package systemservice

import (
	"bytes"
	"strings"
)

// SystemdNameEscape escapes the name according to
// systemd naming convention.
// See https://www.freedesktop.org/software/systemd/man/systemd-escape.html
// for reference.
// It replaces special characters in a unit name with `\x<2-digit hex equivalent>`
// and assumes the name to be ascii string
func SystemdNameEscape(name string) string {
	var buf bytes.Buffer

	for _, c := range name {
		switch {
		case !isValidNameChar(byte(c)):
			buf.Write(escapeChar(byte(c)))
		default:
			buf.WriteByte(byte(c))
		}
	}
	return buf.String()
}

// QuoteCommand formats args as a command line for Exec*= directives.
// Arguments are quoted as necessary and specifier and variable
// characters are doubled so systemd passes them verbatim
func QuoteCommand(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, quoteValue(arg, true))
	}
	return strings.Join(quoted, " ")
}

// QuoteEnvironment formats a single Environment= assignment
func QuoteEnvironment(name, value string) string {
	return quoteValue(name+"="+value, false)
}

func quoteValue(value string, exec bool) string {
	var buf bytes.Buffer
	needsQuotes := value == "" || value == ";"
	for _, c := range value {
		switch c {
		case '%':
			buf.WriteString("%%")
		case '$':
			if exec {
				buf.WriteString("$$")
			} else {
				buf.WriteRune(c)
			}
		case '\\', '"':
			needsQuotes = true
			buf.WriteByte('\\')
			buf.WriteRune(c)
		case ' ', '\t', '\'':
			needsQuotes = true
			buf.WriteRune(c)
		case '\n':
			needsQuotes = true
			buf.WriteString(`\n`)
		default:
			buf.WriteRune(c)
		}
	}
	if needsQuotes {
		return `"` + buf.String() + `"`
	}
	return buf.String()
}

func escapeChar(c byte) []byte {
	var result [4]byte

	result[0] = '\\'
	result[1] = 'x'
	result[2] = hexChar(c >> 4)
	result[3] = hexChar(c)
	return result[:]
}

func isValidNameChar(c byte) bool {
	return bytes.Contains(validChars, []byte{c})
}

func hexChar(c byte) byte {
	return hexChars[c&15]
}

var (
	validChars = []byte(`@:-_.\0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ`)
	hexChars   = []byte("0123456789abcdef")
)
