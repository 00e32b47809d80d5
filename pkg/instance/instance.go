package instance

import (
	"os"
	"strings"
)

const defaultID = "worker-0"

var hostname = os.Hostname

// ID returns the configured worker identifier suffixed with the host name, so
// replicas sharing one configuration still stamp distinct lock owners.
func ID(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = defaultID
	}
	host, err := hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return base
	}
	return base + "@" + host
}
