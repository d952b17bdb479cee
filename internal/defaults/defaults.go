// Package defaults provides the embedded starter configuration for the
// finsight init subcommand.
package defaults

import _ "embed"

//go:generate sh -c "cp ../../examples/config.example.yaml ."

//go:embed config.example.yaml
var ConfigYAML []byte
