package amount

import (
	"fmt"
	"math/big"
	"strings"

	clierr "github.com/yieldline/yieldctl/internal/errors"
)

// MaxUint256 is the all-bits-one sentinel protocols interpret as "everything".
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// WordBytes is the width of one ABI calldata word.
const WordBytes = 32

// ToRawUnits converts a decimal string into raw on-chain units at the given
// precision. Only digits, one optional dot, and surrounding whitespace are
// accepted. Precision beyond decimals is floored, never rounded. The result is
// computed with big.Int throughout; amounts routinely exceed float64 precision.
func ToRawUnits(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	clean := strings.TrimSpace(s)
	if strings.HasPrefix(clean, "-") {
		return nil, clierr.New(clierr.CodeUsage, "amount must not be negative")
	}
	intPart, fracPart, err := splitDecimal(clean)
	if err != nil {
		return nil, err
	}
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return big.NewInt(0), nil
	}
	raw, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid decimal amount %q", s))
	}
	return raw, nil
}

func splitDecimal(s string) (string, string, error) {
	if s == "" {
		return "0", "", nil
	}
	parts := strings.SplitN(s, ".", 2)
	if len(parts) == 2 && strings.Contains(parts[1], ".") {
		return "", "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid decimal amount %q", s))
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return "", "", clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid decimal amount %q", s))
	}
	for _, part := range parts {
		for _, r := range part {
			if r < '0' || r > '9' {
				return "", "", clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q contains non-numeric characters", s))
			}
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart, fracPart, nil
}

// FormatUnits renders raw units back into a decimal string for display,
// trimming trailing fractional zeros.
func FormatUnits(raw *big.Int, decimals int) string {
	if raw == nil {
		return "0"
	}
	s := new(big.Int).Abs(raw).String()
	if decimals <= 0 {
		return s
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

// Word left-pads the big-endian hex representation of v to one calldata word.
func Word(v *big.Int) string {
	if v == nil {
		v = big.NewInt(0)
	}
	hex := v.Text(16)
	if len(hex) > WordBytes*2 {
		hex = hex[len(hex)-WordBytes*2:]
	}
	return strings.Repeat("0", WordBytes*2-len(hex)) + hex
}

// AddressWord strips the 0x prefix and left-pads the address into one word,
// right-aligned as the ABI requires.
func AddressWord(address string) string {
	clean := strings.ToLower(strings.TrimSpace(address))
	clean = strings.TrimPrefix(clean, "0x")
	if len(clean) > WordBytes*2 {
		clean = clean[len(clean)-WordBytes*2:]
	}
	return strings.Repeat("0", WordBytes*2-len(clean)) + clean
}

// CmpRaw compares two non-negative base-unit integer strings without parsing
// them into bounded integers.
func CmpRaw(a, b string) int {
	a = trimLeadingZeros(a)
	b = trimLeadingZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func trimLeadingZeros(v string) string {
	v = strings.TrimLeft(strings.TrimSpace(v), "0")
	if v == "" {
		return "0"
	}
	return v
}
