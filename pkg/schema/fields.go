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
package schema

import (
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// FieldType resolves a dotted path whose first segment is a resource name,
// e.g. "campaign.status" or "ad_group_ad.ad.id".
func (r *Registry) FieldType(path string) (FieldType, error) {
	segs := strings.Split(path, ".")
	res, err := r.Resource(segs[0])
	if err != nil {
		return FieldType{}, err
	}
	if len(segs) == 1 {
		return FieldType{Kind: KindStruct, TypeName: string(res.Descriptor.Name())}, nil
	}
	return r.walk(res.Descriptor, segs[1:], path)
}

// FieldTypeIn resolves a dotted path inside an already resolved struct type.
func (r *Registry) FieldTypeIn(md protoreflect.MessageDescriptor, path string) (FieldType, error) {
	segs := strings.Split(path, ".")
	return r.walk(md, segs, path)
}

func (r *Registry) walk(md protoreflect.MessageDescriptor, segs []string, fullPath string) (FieldType, error) {
	cur := md
	for i, seg := range segs {
		fd := cur.Fields().ByName(protoreflect.Name(seg))
		if fd == nil {
			// Unknown leaves pass through as strings so queries against a
			// newer API surface keep working with older descriptors.
			return FieldType{Kind: KindPrimitive, TypeName: "string"}, nil
		}

		if i == len(segs)-1 {
			return r.classify(fd), nil
		}

		if fd.IsList() {
			return FieldType{}, &InvalidFieldPathError{Path: fullPath, Segment: seg, Reason: "repeated field before end of path"}
		}
		switch fd.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			next := fd.Message()
			r.mu.Lock()
			r.registerLocked(next)
			r.mu.Unlock()
			cur = next
		case protoreflect.EnumKind:
			return FieldType{}, &InvalidFieldPathError{Path: fullPath, Segment: seg, Reason: "enum segment before end of path"}
		default:
			return FieldType{}, &InvalidFieldPathError{Path: fullPath, Segment: seg, Reason: "primitive segment before end of path"}
		}
	}
	return FieldType{Kind: KindStruct, TypeName: string(cur.Name())}, nil
}

func (r *Registry) classify(fd protoreflect.FieldDescriptor) FieldType {
	if fd.IsMap() {
		md := fd.Message()
		r.mu.Lock()
		r.registerLocked(md)
		r.mu.Unlock()
		return FieldType{Kind: KindStruct, TypeName: string(md.Name()), Repeated: true}
	}

	repeated := fd.IsList()
	switch fd.Kind() {
	case protoreflect.EnumKind:
		ed := fd.Enum()
		r.mu.Lock()
		r.registerEnumLocked(ed)
		r.mu.Unlock()
		return FieldType{Kind: KindEnum, TypeName: string(ed.Name()), Repeated: repeated}
	case protoreflect.MessageKind, protoreflect.GroupKind:
		md := fd.Message()
		r.mu.Lock()
		r.registerLocked(md)
		r.mu.Unlock()
		return FieldType{Kind: KindStruct, TypeName: string(md.Name()), Repeated: repeated}
	default:
		return FieldType{Kind: KindPrimitive, TypeName: scalarName(fd.Kind()), Repeated: repeated}
	}
}

func scalarName(k protoreflect.Kind) string {
	switch k {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return "int32"
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return "int64"
	case protoreflect.FloatKind:
		return "float"
	case protoreflect.DoubleKind:
		return "double"
	case protoreflect.BoolKind:
		return "bool"
	default:
		return "string"
	}
}

// WildcardField pairs a field name with its resolved type.
type WildcardField struct {
	Name string
	Type FieldType
}

// WildcardFields lists the fields a bare * expands to: non-repeated
// primitives and enums of the resource, in declaration order.
func (r *Registry) WildcardFields(md protoreflect.MessageDescriptor) []WildcardField {
	fields := md.Fields()
	out := make([]WildcardField, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.IsList() || fd.IsMap() {
			continue
		}
		switch fd.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			continue
		default:
			out = append(out, WildcardField{Name: string(fd.Name()), Type: r.classify(fd)})
		}
	}
	return out
}
