package horde

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// ClientAgent builds the Client-Agent header value (name:version:contact).
// Versions that do not parse (e.g. "dev") are reported as 0.0.0.
func ClientAgent(name, ver, contact string) string {
	v := "0.0.0"
	if parsed, err := version.NewVersion(strings.TrimPrefix(ver, "v")); err == nil {
		v = parsed.String()
	}
	return fmt.Sprintf("%s:%s:%s", name, v, contact)
}
