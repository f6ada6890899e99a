package query

import (
	"strings"
	"time"

	"github.com/hugr-lab/geoquery/catalog"
)

// PartitionBound returns the lower bound used for a partition filter: now
// minus one unit of the field's granularity.
func PartitionBound(g catalog.Granularity, now time.Time) time.Time {
	now = now.UTC()
	switch g {
	case catalog.GranularityHour:
		return now.Add(-time.Hour)
	case catalog.GranularityDay:
		return now.AddDate(0, 0, -1)
	case catalog.GranularityMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(-1, 0, 0)
	}
}

// InjectPartitionFilter appends a lower bound for every field whose partition
// filter is mandatory. When disabled the restriction is returned untouched and
// the backend is left to reject the query.
func InjectPartitionFilter(schema *catalog.Schema, restriction string, enabled bool, now time.Time) string {
	if !enabled {
		return restriction
	}
	required := schema.PartitionRequired()
	if len(required) == 0 {
		return restriction
	}

	clauses := make([]string, 0, len(required)+1)
	switch {
	case restriction == "" || restriction == "TRUE":
	case strings.Contains(restriction, " OR "):
		clauses = append(clauses, "("+restriction+")")
	default:
		clauses = append(clauses, restriction)
	}
	for _, f := range required {
		clauses = append(clauses, f.Name+" >= '"+PartitionBound(f.Granularity, now).Format("2006-01-02")+"'")
	}
	return strings.Join(clauses, " AND ")
}
