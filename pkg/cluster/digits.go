package cluster

import (
	"fmt"
	"strconv"
	"strings"
)

// digitSeparator joins digits in the persisted textual form ("1/1/4096").
const digitSeparator = "/"

// Digits is a mixed-radix counter. The last digit counts items in the deepest
// directory, the preceding digits count directories at each level.
type Digits []int

// NewDigits returns a fresh counter of the given depth with every digit set to 1.
func NewDigits(depth int) Digits {
	digits := make(Digits, depth)
	for i := range digits {
		digits[i] = 1
	}
	return digits
}

// ParseDigits parses the textual form produced by Digits.String.
func ParseDigits(raw string) (Digits, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidDigits)
	}

	parts := strings.Split(raw, digitSeparator)
	digits := make(Digits, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDigits, raw, err)
		}
		if value < 0 {
			return nil, fmt.Errorf("%w: %q: negative digit", ErrInvalidDigits, raw)
		}
		digits = append(digits, value)
	}
	return digits, nil
}

// String renders the digits joined by "/".
func (d Digits) String() string {
	parts := make([]string, len(d))
	for i, value := range d {
		parts[i] = strconv.Itoa(value)
	}
	return strings.Join(parts, digitSeparator)
}

// Clone returns an independent copy.
func (d Digits) Clone() Digits {
	if d == nil {
		return nil
	}
	clone := make(Digits, len(d))
	copy(clone, d)
	return clone
}

// Dirs renders every digit except the leaf counter as a path segment, in
// decimal or in uppercase hexadecimal without leading zeros.
func (d Digits) Dirs(hex bool) []string {
	if len(d) == 0 {
		return []string{}
	}

	segments := make([]string, 0, len(d)-1)
	for _, value := range d[:len(d)-1] {
		if hex {
			segments = append(segments, strings.ToUpper(strconv.FormatInt(int64(value), 16)))
			continue
		}
		segments = append(segments, strconv.Itoa(value))
	}
	return segments
}

// Advance returns the counter that follows d when every level holds at most
// maxItems entries. Digits roll from the leaf toward the top: a digit equal to
// maxItems resets to 1 and carries, any other digit is incremented and stops the
// carry. The second return value reports a carry out of the top digit, in which
// case the top level has cycled back to 1.
func (d Digits) Advance(maxItems int) (Digits, bool) {
	next := d.Clone()
	carry := true
	for i := len(next) - 1; i >= 0 && carry; i-- {
		if next[i] == maxItems {
			next[i] = 1
			continue
		}
		next[i]++
		carry = false
	}
	return next, carry
}
