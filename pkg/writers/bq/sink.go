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

package bq

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"

	"github.com/adsfetch/adsfetch/pkg/writers"
)

// stagingSink holds one account's NDJSON rows until the load job picks
// them up.
type stagingSink interface {
	io.WriteCloser
	// Source returns the load source for the staged rows and a closer for
	// any underlying file handle (nil for remote sources).
	Source(schema bigquery.Schema) (bigquery.LoadSource, io.Closer, error)
	// Remove deletes the staged object after a successful load.
	Remove(ctx context.Context) error
	// Abandon discards a half-written sink before a retry reopens it.
	Abandon()
	// Location describes the sink for logs.
	Location() string
}

// newSink opens the account's staging destination: a GCS object when the
// output path is a gs:// URL, otherwise a dot-prefixed local file.
func (w *Writer) newSink(ctx context.Context, shard string) (stagingSink, error) {
	name := "." + shard + ".json"
	if bucket, prefix, ok := parseGCSPath(w.cfg.OutputPath); ok {
		if w.gcs == nil {
			return nil, errNotConnected
		}
		object := path.Join(prefix, name)
		wr := w.gcs.Bucket(bucket).Object(object).NewWriter(ctx)
		// 1 MiB upload chunks keep streaming memory bounded.
		wr.ChunkSize = 1 << 20
		return &gcsSink{client: w.gcs, bucket: bucket, object: object, w: wr}, nil
	}
	dir, err := writers.ResolveDir(w.cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(dir, name)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bq: opening staging file %s: %w", p, err)
	}
	return &localSink{path: p, f: f}, nil
}

func isGCSPath(p string) bool { return strings.HasPrefix(p, "gs://") }

func parseGCSPath(p string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(p, "gs://")
	if !found {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/"), bucket != ""
}

type localSink struct {
	path string
	f    *os.File
}

func (s *localSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *localSink) Close() error { return s.f.Close() }

func (s *localSink) Source(schema bigquery.Schema) (bigquery.LoadSource, io.Closer, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("bq: reopening staging file %s: %w", s.path, err)
	}
	rs := bigquery.NewReaderSource(f)
	rs.SourceFormat = bigquery.JSON
	rs.Schema = schema
	return rs, f, nil
}

func (s *localSink) Remove(ctx context.Context) error { return os.Remove(s.path) }

func (s *localSink) Abandon() {
	_ = s.f.Close()
	_ = os.Remove(s.path)
}

func (s *localSink) Location() string { return s.path }

type gcsSink struct {
	client *storage.Client
	bucket string
	object string
	w      *storage.Writer
}

func (s *gcsSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *gcsSink) Close() error { return s.w.Close() }

func (s *gcsSink) Source(schema bigquery.Schema) (bigquery.LoadSource, io.Closer, error) {
	ref := bigquery.NewGCSReference(s.Location())
	ref.SourceFormat = bigquery.JSON
	ref.Schema = schema
	return ref, nil, nil
}

func (s *gcsSink) Remove(ctx context.Context) error {
	return s.client.Bucket(s.bucket).Object(s.object).Delete(ctx)
}

// Abandon commits whatever was written; the retry's sink overwrites the
// object, so the partial upload never gets loaded.
func (s *gcsSink) Abandon() { _ = s.w.Close() }

func (s *gcsSink) Location() string { return "gs://" + s.bucket + "/" + s.object }
