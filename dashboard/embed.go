// Package dashboard holds the pit dashboard page served by the REST API.
package dashboard

import "embed"

// DistFS holds the dashboard/dist files.
//
//go:embed dist
var DistFS embed.FS

// IndexPath is the dashboard entry page inside DistFS.
const IndexPath = "dist/index.html"
