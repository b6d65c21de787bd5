// Package buildinfo exposes values stamped at link time with
// -ldflags "-X github.com/uc-cdis/metadata-service-sub001/internal/shared/buildinfo.Version=...".
package buildinfo

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = ""
)

// Info is the payload of GET /version
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date,omitempty"`
}

// Get returns the current build information
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}
