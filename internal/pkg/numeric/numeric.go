// Package numeric converts the numeric representations that arrive from the
// database driver, JSON payloads and configuration into safe int64 values.
package numeric

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MaxSafeInteger is the largest integer a wallet field may hold (2^53 - 1).
// Clients read wallet values as IEEE-754 doubles, so anything larger would lose precision.
const MaxSafeInteger int64 = 1<<53 - 1

var (
	maxSafe = decimal.NewFromInt(MaxSafeInteger)
	minSafe = decimal.NewFromInt(-MaxSafeInteger)
)

// Normalize converts v into a non-negative integer.
// Missing, non-finite or unparsable values yield 0, negatives clamp to 0,
// fractions truncate toward zero and overflow clamps to MaxSafeInteger.
func Normalize(v any) int64 {
	n := Signed(v)
	if n < 0 {
		return 0
	}
	return n
}

// Signed converts v into an integer in [-MaxSafeInteger, MaxSafeInteger].
// It is used for ledger deltas, where spends are negative.
func Signed(v any) int64 {
	d, ok := toDecimal(v)
	if !ok {
		return 0
	}
	return clamp(d)
}

func clamp(d decimal.Decimal) int64 {
	d = d.Truncate(0)
	if d.GreaterThan(maxSafe) {
		return MaxSafeInteger
	}
	if d.LessThan(minSafe) {
		return -MaxSafeInteger
	}
	return d.IntPart()
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int8:
		return decimal.NewFromInt(int64(x)), true
	case int16:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(x)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(x)), true
	case uint16:
		return decimal.NewFromInt(int64(x)), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0), true
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case *big.Int:
		if x == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromBigInt(x, 0), true
	case big.Int:
		return decimal.NewFromBigInt(&x, 0), true
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case json.Number:
		return fromString(string(x))
	case string:
		return fromString(x)
	case *string:
		if x == nil {
			return decimal.Zero, false
		}
		return fromString(*x)
	case []byte:
		return fromString(string(x))
	case pgtype.Numeric:
		return fromNumeric(x)
	case pgtype.Int8:
		if !x.Valid {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(x.Int64), true
	case pgtype.Int4:
		if !x.Valid {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(int64(x.Int32)), true
	case pgtype.Float8:
		if !x.Valid {
			return decimal.Zero, false
		}
		return fromFloat(x.Float64)
	case *int64:
		if x == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(*x), true
	default:
		return decimal.Zero, false
	}
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

func fromString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, bool) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), true
}
