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
// Package schema resolves report resources and field paths against the
// platform's protobuf descriptors.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/shenzhencenter/google-ads-pb/services"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// FieldKind classifies a resolved field.
type FieldKind int

const (
	KindPrimitive FieldKind = iota
	KindEnum
	KindStruct
)

func (k FieldKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindStruct:
		return "struct"
	}
	return "unknown"
}

// FieldType describes the resolved type of a projected field. For primitives
// TypeName is one of string, int32, int64, float, double, bool; for enums and
// structs it is the registry key of the type.
type FieldType struct {
	Kind     FieldKind
	TypeName string
	Repeated bool
}

// ResourceInfo describes the resource named after FROM. Resources whose name
// ends in _constant are account-independent and fetched exactly once.
type ResourceInfo struct {
	Name       string
	Descriptor protoreflect.MessageDescriptor
	IsConstant bool
}

// UnknownResourceError reports a FROM target that is not a field of the
// report row type.
type UnknownResourceError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownResourceError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("unknown resource %q (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
	}
	return fmt.Sprintf("unknown resource %q", e.Name)
}

// InvalidFieldPathError reports a field path that cannot be walked: an
// intermediate segment resolved to a primitive or enum, or a repeated field
// appeared mid-path.
type InvalidFieldPathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *InvalidFieldPathError) Error() string {
	return fmt.Sprintf("invalid field path %q at %q: %s", e.Path, e.Segment, e.Reason)
}

// Registry resolves resource names and dotted field paths to typed field
// descriptors. All lookups cache on first access.
type Registry struct {
	mu        sync.RWMutex
	row       protoreflect.MessageDescriptor
	resources map[string]protoreflect.MessageDescriptor // row field name -> resource
	structs   map[string]protoreflect.MessageDescriptor // short type name -> message
	commons   map[string]protoreflect.MessageDescriptor // short type name, common namespace
	enums     map[string]protoreflect.EnumDescriptor    // short type name -> enum
	enumNames map[string]map[int64]string
}

// NewRegistry builds a registry over the search-report row type.
func NewRegistry() *Registry {
	return newRegistry((&services.GoogleAdsRow{}).ProtoReflect().Descriptor())
}

func newRegistry(row protoreflect.MessageDescriptor) *Registry {
	return &Registry{
		row:       row,
		resources: make(map[string]protoreflect.MessageDescriptor),
		structs:   make(map[string]protoreflect.MessageDescriptor),
		commons:   make(map[string]protoreflect.MessageDescriptor),
		enums:     make(map[string]protoreflect.EnumDescriptor),
		enumNames: make(map[string]map[int64]string),
	}
}

// Resource resolves a FROM target to its message descriptor.
func (r *Registry) Resource(name string) (ResourceInfo, error) {
	r.mu.RLock()
	if md, ok := r.resources[name]; ok {
		r.mu.RUnlock()
		return ResourceInfo{Name: name, Descriptor: md, IsConstant: strings.HasSuffix(name, "_constant")}, nil
	}
	r.mu.RUnlock()

	fd := r.row.Fields().ByName(protoreflect.Name(name))
	if fd == nil || fd.Kind() != protoreflect.MessageKind {
		return ResourceInfo{}, &UnknownResourceError{Name: name, Suggestions: r.suggest(name)}
	}

	md := fd.Message()
	r.mu.Lock()
	r.resources[name] = md
	r.registerLocked(md)
	r.mu.Unlock()

	return ResourceInfo{Name: name, Descriptor: md, IsConstant: strings.HasSuffix(name, "_constant")}, nil
}

// suggest returns the closest row-type field names for an unknown resource.
func (r *Registry) suggest(name string) []string {
	fields := r.row.Fields()
	candidates := make([]string, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		candidates = append(candidates, string(fields.Get(i).Name()))
	}
	sort.Strings(candidates)

	matches := fuzzy.Find(name, candidates)
	n := len(matches)
	if n > 3 {
		n = 3
	}
	out := make([]string, 0, n)
	for _, m := range matches[:n] {
		out = append(out, m.Str)
	}
	return out
}

// registerLocked files a message type under its short name; callers hold mu.
func (r *Registry) registerLocked(md protoreflect.MessageDescriptor) {
	name := string(md.Name())
	if _, ok := r.structs[name]; ok {
		return
	}
	r.structs[name] = md
	if strings.Contains(string(md.FullName()), ".common.") {
		r.commons[name] = md
	}
}

func (r *Registry) registerEnumLocked(ed protoreflect.EnumDescriptor) {
	name := string(ed.Name())
	if _, ok := r.enums[name]; ok {
		return
	}
	r.enums[name] = ed
}

// StructDesc looks up a previously resolved struct type by its registry key.
func (r *Registry) StructDesc(typeName string) (protoreflect.MessageDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.structs[typeName]
	return md, ok
}

// EnumNames returns the number-to-name table for an enum registry key.
func (r *Registry) EnumNames(typeName string) (map[int64]string, bool) {
	r.mu.RLock()
	if names, ok := r.enumNames[typeName]; ok {
		r.mu.RUnlock()
		return names, true
	}
	ed, ok := r.enums[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	values := ed.Values()
	names := make(map[int64]string, values.Len())
	for i := 0; i < values.Len(); i++ {
		v := values.Get(i)
		names[int64(v.Number())] = string(v.Name())
	}

	r.mu.Lock()
	r.enumNames[typeName] = names
	r.mu.Unlock()
	return names, true
}
