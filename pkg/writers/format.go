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

package writers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultArraySeparator joins repeated values in sinks that flatten arrays.
const DefaultArraySeparator = "|"

// FormatCell renders one parsed value as text. Arrays are joined with sep,
// object elements and struct values as JSON, nil as the empty string.
func FormatCell(v any, sep string) string {
	if sep == "" {
		sep = DefaultArraySeparator
	}
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(val))
		for i, el := range val {
			parts[i] = formatElement(el)
		}
		return strings.Join(parts, sep)
	case map[string]any:
		return jsonString(val)
	default:
		return formatScalar(v)
	}
}

// cellValue keeps primitives in their native Go type and renders containers
// as text, for sinks whose cells are typed (xlsx, sqldb).
func cellValue(v any, sep string) any {
	switch v.(type) {
	case nil:
		return nil
	case []any, map[string]any:
		return FormatCell(v, sep)
	default:
		return v
	}
}

func formatElement(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case []any, map[string]any:
		return jsonString(v)
	default:
		return formatScalar(v)
	}
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
