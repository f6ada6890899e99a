package catalog

import (
	"fmt"
	"strings"
)

const pregenMarker = "_pregen_"

// PregeneratedViewName names the materialized simplified view of a table at a
// tolerance in meters, e.g. roads_pregen_100m.
func PregeneratedViewName(table string, tolerance int) string {
	return fmt.Sprintf("%s%s%dm", table, pregenMarker, tolerance)
}

// IsPregeneratedView reports whether a table name refers to a pregenerated
// view. Catalog listings skip these.
func IsPregeneratedView(name string) bool {
	return strings.Contains(name, pregenMarker)
}
