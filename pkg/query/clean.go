// Copyright 2026 The adsfetch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package query

import "strings"

// Clean strips comments (# lines, -- and // to end of line, /* */ blocks),
// collapses whitespace runs outside string literals, and drops a trailing
// semicolon. Cleaning is idempotent.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var inSingle, inDouble, escaped bool
	atLineStart := true
	lastSpace := true

	writeByte := func(c byte) {
		if c == ' ' {
			if lastSpace {
				return
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteByte(c)
	}

	i := 0
	for i < len(text) {
		c := text[i]

		if inSingle || inDouble {
			b.WriteByte(c)
			lastSpace = false
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if (inSingle && c == '\'') || (inDouble && c == '"') {
				inSingle, inDouble = false, false
			}
			i++
			continue
		}

		switch {
		case c == '\'':
			inSingle = true
			b.WriteByte(c)
			lastSpace = false
			atLineStart = false
			i++
		case c == '"':
			inDouble = true
			b.WriteByte(c)
			lastSpace = false
			atLineStart = false
			i++
		case c == '#' && atLineStart:
			i = skipToLineEnd(text, i)
		case strings.HasPrefix(text[i:], "--") || strings.HasPrefix(text[i:], "//"):
			i = skipToLineEnd(text, i)
			writeByte(' ')
		case strings.HasPrefix(text[i:], "/*"):
			end := strings.Index(text[i+2:], "*/")
			if end == -1 {
				i = len(text)
			} else {
				i += end + 4
			}
			writeByte(' ')
			atLineStart = false
		case c == '\n':
			writeByte(' ')
			atLineStart = true
			i++
		case c == ' ' || c == '\t' || c == '\r':
			writeByte(' ')
			i++
		default:
			writeByte(c)
			atLineStart = false
			i++
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimRight(out, ";")
	return strings.TrimSpace(out)
}

func skipToLineEnd(text string, i int) int {
	for i < len(text) && text[i] != '\n' {
		i++
	}
	return i
}
