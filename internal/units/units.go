package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// FormatUnits shifts an integer base-unit amount left by precision decimal
// places. Trailing fractional zeros are dropped.
func FormatUnits(amount *big.Int, precision int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(precision)).String()
}

// ParseUnits is the inverse of FormatUnits. It rejects values with more
// fractional digits than precision allows.
func ParseUnits(value string, precision int) (*big.Int, error) {
	clean := strings.TrimSpace(value)
	if !decimalPattern.MatchString(clean) {
		return nil, fmt.Errorf("invalid decimal amount %q", value)
	}
	if precision < 0 {
		return nil, fmt.Errorf("precision must be >= 0")
	}
	if parts := strings.SplitN(clean, ".", 2); len(parts) == 2 && len(parts[1]) > precision {
		return nil, fmt.Errorf("decimal precision exceeds %d places", precision)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal amount %q: %w", value, err)
	}
	return d.Shift(int32(precision)).BigInt(), nil
}

// ParseGwei converts a decimal gwei value into wei.
func ParseGwei(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	wei, err := ParseUnits(value, 9)
	if err != nil {
		return nil, err
	}
	return wei, nil
}
