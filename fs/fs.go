package appfs

import "embed"

// FS holds the assets shipped inside the binaries.
//go:embed migrations/*.sql templates/email/*
var FS embed.FS
