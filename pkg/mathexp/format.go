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
package mathexp

import (
	"strings"
	"time"
)

// javaPatternTokens maps Java date-format tokens to Go reference-layout
// fragments, longest first so the scanner matches greedily.
var javaPatternTokens = []struct {
	java string
	gofm string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"H", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"a", "PM"},
	{"XXX", "Z07:00"},
	{"Z", "-0700"},
}

// javaToGoLayout converts a Java-style date pattern ("yyyy-MM-dd HH:mm:ss")
// into a Go reference layout. Single-quoted runs are literals, '' is a quote.
func javaToGoLayout(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] == '\'' {
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end == -1 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		matched := false
		for _, tok := range javaPatternTokens {
			if strings.HasPrefix(pattern[i:], tok.java) {
				b.WriteString(tok.gofm)
				i += len(tok.java)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// formatTime renders a time with a Java-style pattern.
func formatTime(t time.Time, pattern string) string {
	return t.Format(javaToGoLayout(pattern))
}
