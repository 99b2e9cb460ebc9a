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
package adsapi

import (
	"testing"

	"github.com/shenzhencenter/google-ads-pb/common"
	"github.com/shenzhencenter/google-ads-pb/enums"
	"github.com/shenzhencenter/google-ads-pb/resources"
	"github.com/shenzhencenter/google-ads-pb/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestMessageToVariant(t *testing.T) {
	row := &services.GoogleAdsRow{
		Campaign: &resources.Campaign{
			ResourceName: "customers/1/campaigns/2",
			Id:           proto.Int64(2),
			Name:         proto.String("Demo"),
			Status:       enums.CampaignStatusEnum_ENABLED,
			Labels:       []string{"customers/1/labels/3", "customers/1/labels/4"},
			NetworkSettings: &resources.Campaign_NetworkSettings{
				TargetGoogleSearch: proto.Bool(true),
			},
		},
		Metrics: &common.Metrics{
			Clicks: proto.Int64(3),
			Ctr:    proto.Float64(0.5),
		},
	}

	got := MessageToVariant(row.ProtoReflect())

	campaign, ok := got["campaign"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "customers/1/campaigns/2", campaign["resource_name"])
	assert.Equal(t, int64(2), campaign["id"])
	assert.Equal(t, "Demo", campaign["name"])
	assert.Equal(t, []any{"customers/1/labels/3", "customers/1/labels/4"}, campaign["labels"])

	settings, ok := campaign["network_settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, settings["target_google_search"])

	metrics, ok := got["metrics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), metrics["clicks"])
	assert.Equal(t, 0.5, metrics["ctr"])
}

func TestMessageToVariantEnumsStayNumeric(t *testing.T) {
	row := &services.GoogleAdsRow{
		Campaign: &resources.Campaign{Status: enums.CampaignStatusEnum_PAUSED},
	}

	got := MessageToVariant(row.ProtoReflect())
	campaign := got["campaign"].(map[string]any)
	assert.Equal(t, int64(enums.CampaignStatusEnum_PAUSED), campaign["status"])
}

func TestMessageToVariantOmitsUnsetFields(t *testing.T) {
	row := &services.GoogleAdsRow{
		Campaign: &resources.Campaign{Id: proto.Int64(1)},
	}

	got := MessageToVariant(row.ProtoReflect())
	assert.NotContains(t, got, "ad_group")
	campaign := got["campaign"].(map[string]any)
	assert.NotContains(t, campaign, "name")
}
