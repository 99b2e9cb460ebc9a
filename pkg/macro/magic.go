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
package macro

import (
	"regexp"
	"strconv"
	"time"
)

// dynamicDateRe matches the dynamic-date macro values :YYYY, :YYYYMM and
// :YYYYMMDD with an optional -N offset.
var dynamicDateRe = regexp.MustCompile(`^:YYYY(MM(DD)?)?(?:-(\d+))?$`)

// resolveMacros copies the macro map, rewrites dynamic-date values relative
// to today, and injects the built-in date macros when absent.
func (r *Renderer) resolveMacros(macros map[string]string) map[string]string {
	now := r.now()
	out := make(map[string]string, len(macros)+3)
	for k, v := range macros {
		if d, ok := dynamicDate(v, now); ok {
			out[k] = d
		} else {
			out[k] = v
		}
	}
	if _, ok := out["date_iso"]; !ok {
		out["date_iso"] = now.Format("20060102")
	}
	if _, ok := out["current_date"]; !ok {
		out["current_date"] = now.Format("2006-01-02")
	}
	if _, ok := out["current_datetime"]; !ok {
		out["current_datetime"] = now.Format("2006-01-02 15:04:05")
	}
	return out
}

// dynamicDate rewrites ":YYYYMMDD-N" to the date N days before now (months
// for :YYYYMM, years for :YYYY), formatted as YYYY-MM-DD. Without an offset
// the value is today.
func dynamicDate(value string, now time.Time) (string, bool) {
	m := dynamicDateRe.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	n := 0
	if m[3] != "" {
		n, _ = strconv.Atoi(m[3])
	}
	switch {
	case m[2] != "": // :YYYYMMDD
		now = now.AddDate(0, 0, -n)
	case m[1] != "": // :YYYYMM
		now = now.AddDate(0, -n, 0)
	default: // :YYYY
		now = now.AddDate(-n, 0, 0)
	}
	return now.Format("2006-01-02"), true
}
