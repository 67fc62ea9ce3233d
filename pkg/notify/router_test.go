package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteFor(t *testing.T) {
	tests := map[string]Route{
		"Engineering Daily Standup": RouteEngineering,
		"DevOps Sync":               RouteEngineering,
		"Product Review":            RouteProduct,
		"Design Crit":               RouteDesign,
		"Daily Sync":                RouteStandups,
		"Team Standup":              RouteStandups,
		"Board Meeting":             RouteDefault,
		"":                          RouteDefault,
	}
	for title, want := range tests {
		t.Run(title, func(t *testing.T) {
			assert.Equal(t, want, RouteFor(title))
		})
	}
}

func TestRouter_Channel(t *testing.T) {
	r := NewRouter(map[Route]string{RouteEngineering: "#eng-meetings", RouteDefault: " "})

	assert.Equal(t, "eng-meetings", r.Channel("Engineering Daily Standup"))
	assert.Equal(t, "product", r.Channel("Product Review"))
	assert.Equal(t, "general", r.Channel("Board Meeting"))
	assert.Equal(t, "general", r.DefaultChannel())
}
