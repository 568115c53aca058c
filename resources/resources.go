// Package resources embeds data files shipped with the binary.
package resources

import "embed"

//go:embed selectors.yaml
var Files embed.FS

// SelectorFile is the path of the default selector set inside Files.
const SelectorFile = "selectors.yaml"
