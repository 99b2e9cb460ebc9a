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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJavaToGoLayout(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"yyyy-MM-dd", "2006-01-02"},
		{"yyyyMMdd", "20060102"},
		{"dd/MM/yyyy HH:mm:ss", "02/01/2006 15:04:05"},
		{"MMM d, yyyy", "Jan 2, 2006"},
		{"EEEE", "Monday"},
		{"yyyy-MM-dd'T'HH:mm:ss", "2006-01-02T15:04:05"},
		{"h:mm a", "3:04 PM"},
		{"yy/M/d", "06/1/2"},
		{"''yyyy", "'2006"},
	}
	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			assert.Equal(t, tc.want, javaToGoLayout(tc.pattern))
		})
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 14, 5, 9, 0, time.UTC)

	assert.Equal(t, "2024-03-07", formatTime(ts, "yyyy-MM-dd"))
	assert.Equal(t, "20240307", formatTime(ts, "yyyyMMdd"))
	assert.Equal(t, "Mar 7, 2024 14:05", formatTime(ts, "MMM d, yyyy HH:mm"))
	assert.Equal(t, "2:05 PM", formatTime(ts, "h:mm a"))
	assert.Equal(t, "Thursday", formatTime(ts, "EEEE"))
}
