package sqldb

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

func normalizeValues(values []any, typeNames []string) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		typeName := ""
		if i < len(typeNames) {
			typeName = typeNames[i]
		}
		normalized[i] = normalizeValue(value, typeName)
	}
	return normalized
}

// normalizeValue converts driver values into JSON-friendly ones. Exact
// numerics become json.Number so they are emitted as numbers without float
// rounding, and DATE columns render as YYYY-MM-DD.
func normalizeValue(value any, typeName string) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		if isDecimalType(typeName) {
			return decimalNumber(string(typed))
		}
		return string(typed)
	case string:
		if isDecimalType(typeName) {
			return decimalNumber(typed)
		}
		return typed
	case time.Time:
		if isDateType(typeName) {
			return typed.Format(dateLayout)
		}
		return typed.Format(time.RFC3339Nano)
	case *big.Int:
		return json.Number(typed.String())
	case fmt.Stringer:
		if isDecimalType(typeName) {
			return decimalNumber(typed.String())
		}
		return typed.String()
	default:
		return typed
	}
}

func decimalNumber(raw string) any {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return json.Number(value.String())
}

func isDecimalType(typeName string) bool {
	return strings.HasPrefix(typeName, "DECIMAL") || strings.HasPrefix(typeName, "NUMERIC")
}

func isDateType(typeName string) bool {
	return typeName == "DATE"
}
