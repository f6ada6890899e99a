package filter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/geometry"
)

// literal renders a constant. Numbers are locale independent, dates render as
// 'YYYY-MM-DD' and geometries go through the dialect's literal constructor.
func (e env) literal(kind Kind, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return e.dialect.StringLiteral(x, e.opts.EscapeStrings), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return "'" + x.Format("2006-01-02") + "'", nil
	case geometry.Envelope:
		return e.dialect.GeometryLiteral(x.Polygon())
	case orb.Geometry:
		return e.dialect.GeometryLiteral(x)
	case nil:
		return "", &UnresolvedOperandError{Kind: kind, Reason: "missing literal"}
	default:
		return "", &UnresolvedOperandError{Kind: kind, Operand: fmt.Sprintf("%v", v), Reason: fmt.Sprintf("unsupported literal type %T", v)}
	}
}
