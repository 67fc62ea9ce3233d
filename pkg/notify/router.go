package notify

import "strings"

// Route names a class of meeting that maps to one channel.
type Route string

const (
	RouteEngineering Route = "engineering"
	RouteProduct     Route = "product"
	RouteDesign      Route = "design"
	RouteStandups    Route = "standups"
	RouteDefault     Route = "default"
)

// routeRules are checked in order against the lower-cased title.
var routeRules = []struct {
	route    Route
	keywords []string
}{
	{RouteEngineering, []string{"engineering", "dev"}},
	{RouteProduct, []string{"product"}},
	{RouteDesign, []string{"design"}},
	{RouteStandups, []string{"standup", "daily"}},
}

// Router maps meeting titles to channel names.
type Router struct {
	channels map[Route]string
}

// DefaultChannels is the route table used when config has none.
func DefaultChannels() map[Route]string {
	return map[Route]string{
		RouteEngineering: "engineering",
		RouteProduct:     "product",
		RouteDesign:      "design",
		RouteStandups:    "standups",
		RouteDefault:     "general",
	}
}

// NewRouter builds a router. Routes missing from channels fall back to DefaultChannels.
func NewRouter(channels map[Route]string) *Router {
	merged := DefaultChannels()
	for r, name := range channels {
		if name = strings.TrimPrefix(strings.TrimSpace(name), "#"); name != "" {
			merged[r] = name
		}
	}
	return &Router{channels: merged}
}

// RouteFor classifies a title.
func RouteFor(title string) Route {
	lower := strings.ToLower(title)
	for _, rule := range routeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.route
			}
		}
	}
	return RouteDefault
}

// Channel returns the channel name for title.
func (r *Router) Channel(title string) string {
	return r.channels[RouteFor(title)]
}

// DefaultChannel returns the fallback channel name.
func (r *Router) DefaultChannel() string {
	return r.channels[RouteDefault]
}
