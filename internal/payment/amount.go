package payment

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// decimalsByCurrency lists currencies whose catalog amounts carry minor
// units. Anything else, COP included, is priced in whole units.
var decimalsByCurrency = map[string]int{
	"USD": 2,
	"EUR": 2,
}

func decimals(currency string) int {
	return decimalsByCurrency[strings.ToUpper(currency)]
}

// FormatAmount renders amount as a decimal string for currency.
func FormatAmount(amount int64, currency string) string {
	d := decimals(currency)
	if d == 0 {
		return strconv.FormatInt(amount, 10)
	}
	r := new(big.Rat).SetFrac(big.NewInt(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil))
	return r.FloatString(d)
}

// ParseAmount reads a decimal string in currency into catalog units.
func ParseAmount(s, currency string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals(currency))), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", s, currency)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	if !r.Num().IsInt64() {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return r.Num().Int64(), nil
}
