package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
)

func MarshalDecimal(d decimal.Decimal) graphql.Marshaler {
	return graphql.WriterFunc(func(w io.Writer) {
		w.Write([]byte(d.String()))
	})
}

// UnmarshalDecimal accepts numbers and numeric strings; thousands separators such as "1,250.5" are allowed.
func UnmarshalDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
		}
		return decimal.NewFromString(s)
	case json.Number:
		return decimal.NewFromString(v.String())
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("invalid decimal value %v", i)
	}
}
