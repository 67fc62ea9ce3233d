// Package buildinfo reports the version stamped into the recap binary.
package buildinfo

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// These vars are set at build time via ldflags:
// -X github.com/otherjamesbrown/recap-bot/pkg/buildinfo.Version=v0.3.0
// -X github.com/otherjamesbrown/recap-bot/pkg/buildinfo.Commit=4c1e9a2
// -X github.com/otherjamesbrown/recap-bot/pkg/buildinfo.BuildTime=2025-10-20T10:30:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a service.
type Info struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	Modified    bool   `json:"modified,omitempty"`
}

// Get returns build info for the named service.
func Get(serviceName string) Info {
	return Info{
		ServiceName: serviceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
	}
}

// Resolve is Get with gaps filled from the VCS stamp the go tool embeds
// when ldflags were not supplied.
func Resolve(serviceName string) Info {
	info := Get(serviceName)
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromSettings(info, bi.Settings)
}

func fillFromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value[:min(7, len(s.Value))]
			}
		case "vcs.time":
			if info.BuildTime == "unknown" && s.Value != "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String returns a human-readable one-liner like "v0.3.0 (4c1e9a2, 2025-10-20T10:30:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Handler serves build info as JSON.
func Handler(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, Resolve(serviceName))
	}
}
