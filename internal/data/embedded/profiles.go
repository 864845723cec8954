// Package embedded provides access to embedded configuration data files.
package embedded

import _ "embed"

// ProfilesData contains the default model profile catalog YAML data.
//
//go:embed profiles.yaml
var ProfilesData []byte
