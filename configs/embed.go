// Package configs provides the embedded configuration template for
// ragcore. The template is embedded at build time so `ragcore config init`
// works in every distribution, source builds included.
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration written by
// `ragcore config init`. It lists every recognized key at its default.
//
//go:embed ragcore.example.yaml
var ConfigTemplate string
