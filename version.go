package silvan

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var version string

// Version is the released version of silvan.
var Version = strings.TrimSpace(version)
