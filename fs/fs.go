// Package appfs holds assets compiled into the binaries: database migrations
// and email templates.
package appfs

import "embed"

//go:embed migrations templates
var FS embed.FS
