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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource(t *testing.T) {
	r := NewRegistry()

	res, err := r.Resource("campaign")
	require.NoError(t, err)
	assert.Equal(t, "campaign", res.Name)
	assert.Equal(t, "Campaign", string(res.Descriptor.Name()))
	assert.False(t, res.IsConstant)

	// cached second lookup
	res2, err := r.Resource("campaign")
	require.NoError(t, err)
	assert.Equal(t, res.Descriptor, res2.Descriptor)
}

func TestResourceConstant(t *testing.T) {
	r := NewRegistry()

	res, err := r.Resource("geo_target_constant")
	require.NoError(t, err)
	assert.True(t, res.IsConstant)
}

func TestResourceUnknownSuggests(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resource("campain")
	require.Error(t, err)
	var unknownErr *UnknownResourceError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "campain", unknownErr.Name)
	assert.Contains(t, unknownErr.Suggestions, "campaign")
}

func TestFieldTypePrimitives(t *testing.T) {
	r := NewRegistry()

	ft, err := r.FieldType("campaign.id")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "int64"}, ft)

	ft, err = r.FieldType("campaign.name")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "string"}, ft)

	ft, err = r.FieldType("metrics.clicks")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "int64"}, ft)

	ft, err = r.FieldType("metrics.ctr")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "double"}, ft)
}

func TestFieldTypeEnum(t *testing.T) {
	r := NewRegistry()

	ft, err := r.FieldType("campaign.status")
	require.NoError(t, err)
	assert.Equal(t, KindEnum, ft.Kind)
	assert.Equal(t, "CampaignStatus", ft.TypeName)
	assert.False(t, ft.Repeated)

	names, ok := r.EnumNames("CampaignStatus")
	require.True(t, ok)
	assert.Equal(t, "ENABLED", names[2])
	assert.Equal(t, "PAUSED", names[3])
}

func TestFieldTypeNestedStruct(t *testing.T) {
	r := NewRegistry()

	ft, err := r.FieldType("campaign.network_settings")
	require.NoError(t, err)
	assert.Equal(t, KindStruct, ft.Kind)
	assert.Equal(t, "NetworkSettings", ft.TypeName)

	_, ok := r.StructDesc("NetworkSettings")
	assert.True(t, ok)

	ft, err = r.FieldType("campaign.network_settings.target_google_search")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "bool"}, ft)
}

func TestFieldTypeCrossResourceWalk(t *testing.T) {
	r := NewRegistry()

	ft, err := r.FieldType("ad_group_ad.ad.id")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "int64"}, ft)
}

func TestFieldTypeUnknownLeafIsString(t *testing.T) {
	r := NewRegistry()

	ft, err := r.FieldType("campaign.field_added_in_a_future_version")
	require.NoError(t, err)
	assert.Equal(t, FieldType{Kind: KindPrimitive, TypeName: "string"}, ft)
}

func TestFieldTypePrimitiveMidPath(t *testing.T) {
	r := NewRegistry()

	_, err := r.FieldType("campaign.id.nested")
	require.Error(t, err)
	var pathErr *InvalidFieldPathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "id", pathErr.Segment)
}

func TestFieldTypeRepeatedMidPath(t *testing.T) {
	r := NewRegistry()

	// campaign.labels is a repeated resource-name list
	_, err := r.FieldType("campaign.labels.nested")
	require.Error(t, err)
	var pathErr *InvalidFieldPathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "labels", pathErr.Segment)
}

func TestWildcardFields(t *testing.T) {
	r := NewRegistry()

	res, err := r.Resource("campaign")
	require.NoError(t, err)

	fields := r.WildcardFields(res.Descriptor)
	require.NotEmpty(t, fields)

	byName := make(map[string]FieldType, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Type
	}
	assert.Contains(t, byName, "id")
	assert.Contains(t, byName, "name")
	assert.Contains(t, byName, "status")
	assert.Equal(t, KindEnum, byName["status"].Kind)
	// structs and repeated fields stay out of the wildcard
	assert.NotContains(t, byName, "network_settings")
	assert.NotContains(t, byName, "labels")
}
