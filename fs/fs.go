package appfs

import "embed"

// FS holds the SQL migrations and the text templates shipped inside the binaries.
//
//go:embed migrations templates
var FS embed.FS
