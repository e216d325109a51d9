package cluster

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

// DigitsTestSuite tests the mixed-radix counter.
type DigitsTestSuite struct {
	suite.Suite
}

// TestNewDigits tests fresh counters.
func (s *DigitsTestSuite) TestNewDigits() {
	s.Equal(Digits{1}, NewDigits(1))
	s.Equal(Digits{1, 1, 1}, NewDigits(3))
	s.Equal(Digits{1, 1, 1, 1, 1, 1}, NewDigits(6))
}

// TestParseDigits tests the textual form.
func (s *DigitsTestSuite) TestParseDigits() {
	digits, err := ParseDigits("255/300/400")
	s.Require().NoError(err)
	s.Equal(Digits{255, 300, 400}, digits)
	s.Equal("255/300/400", digits.String())

	digits, err = ParseDigits(" 1 / 1 / 4096 ")
	s.Require().NoError(err)
	s.Equal(Digits{1, 1, 4096}, digits)
}

// TestParseDigitsInvalid tests rejection of malformed counters.
func (s *DigitsTestSuite) TestParseDigitsInvalid() {
	for _, raw := range []string{"", "   ", "1/x/3", "1//3", "1/-2/3"} {
		_, err := ParseDigits(raw)
		s.ErrorIs(err, ErrInvalidDigits, "input %q", raw)
	}
}

// TestDirsDecimal tests decimal path segments.
func (s *DigitsTestSuite) TestDirsDecimal() {
	s.Equal([]string{"1", "1"}, Digits{1, 1, 1}.Dirs(false))
	s.Equal([]string{"255", "300"}, Digits{255, 300, 400}.Dirs(false))
	s.Empty(Digits{7}.Dirs(false))
	s.Empty(Digits{}.Dirs(false))
}

// TestDirsHex tests uppercase hexadecimal path segments.
func (s *DigitsTestSuite) TestDirsHex() {
	s.Equal([]string{"FF", "12C"}, Digits{255, 300, 400}.Dirs(true))
	s.Equal([]string{"1", "A0"}, Digits{1, 160, 1}.Dirs(true))
	s.Equal([]string{"1", "1"}, Digits{1, 1, 1}.Dirs(true))
}

// TestAdvanceLeaf tests a plain leaf increment.
func (s *DigitsTestSuite) TestAdvanceLeaf() {
	next, wrapped := Digits{1, 1, 1}.Advance(4096)
	s.Equal(Digits{1, 1, 2}, next)
	s.False(wrapped)
}

// TestAdvanceCarry tests carrying into the parent level.
func (s *DigitsTestSuite) TestAdvanceCarry() {
	next, wrapped := Digits{1, 1, 4096}.Advance(4096)
	s.Equal(Digits{1, 2, 1}, next)
	s.False(wrapped)

	next, wrapped = Digits{1, 4096, 4096}.Advance(4096)
	s.Equal(Digits{2, 1, 1}, next)
	s.False(wrapped)
}

// TestAdvanceWrap tests the top level cycling back to 1.
func (s *DigitsTestSuite) TestAdvanceWrap() {
	next, wrapped := Digits{2, 2, 2}.Advance(2)
	s.Equal(Digits{1, 1, 1}, next)
	s.True(wrapped)

	next, wrapped = Digits{5}.Advance(5)
	s.Equal(Digits{1}, next)
	s.True(wrapped)
}

// TestAdvanceMaxItemsOne tests that a capacity of one rolls on every step.
func (s *DigitsTestSuite) TestAdvanceMaxItemsOne() {
	next, wrapped := Digits{1, 1, 1}.Advance(1)
	s.Equal(Digits{1, 1, 1}, next)
	s.True(wrapped)
}

// TestAdvanceAboveCapacity tests digits already larger than the capacity.
func (s *DigitsTestSuite) TestAdvanceAboveCapacity() {
	next, wrapped := Digits{255, 300, 400}.Advance(10)
	s.Equal(Digits{255, 300, 401}, next)
	s.False(wrapped)
}

// TestAdvanceDoesNotMutate tests that Advance leaves its receiver untouched.
func (s *DigitsTestSuite) TestAdvanceDoesNotMutate() {
	current := Digits{1, 1, 2}
	_, _ = current.Advance(2)
	s.Equal(Digits{1, 1, 2}, current)
}

// TestDigitsSuite runs the digits test suite.
func TestDigitsSuite(t *testing.T) {
	suite.Run(t, new(DigitsTestSuite))
}
