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
	"fmt"
	"os"
)

// managedMarkers are set by serverless runtimes whose filesystem is
// read-only outside /tmp.
var managedMarkers = []string{"K_SERVICE", "GAE_APPLICATION", "FUNCTION_TARGET"}

func runningManaged() bool {
	for _, name := range managedMarkers {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// ResolveDir picks the directory output files land in: the configured path
// (created if missing), /tmp on managed runtimes, otherwise the working
// directory.
func ResolveDir(outputPath string) (string, error) {
	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return "", fmt.Errorf("creating output directory %s: %w", outputPath, err)
		}
		return outputPath, nil
	}
	if runningManaged() {
		return "/tmp", nil
	}
	return ".", nil
}
