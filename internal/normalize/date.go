package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/ledgermint/ledgermint/internal/domain"
)

// datePatterns is the ordered list of layouts observed across issuer exports.
// Order matters: unambiguous patterns come first so "03-04-2021" resolves as
// day-month (the dominant convention in the source statements) only after the
// ISO and month-name forms have been ruled out.
var datePatterns = []string{
	"2006-01-02",
	"2006/01/02",
	"2-Jan-06",
	"02-Jan-06",
	"2-Jan-2006",
	"02-Jan-2006",
	"02 Jan 2006",
	"02/01/2006",
	"2/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02/01/06",
}

// ParseDate tries each known pattern in order and returns the first that
// parses. Returns ErrUnparsableDate on exhaustion.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty field", domain.ErrUnparsableDate)
	}

	for _, pattern := range datePatterns {
		if t, err := time.Parse(pattern, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q matches no known pattern", domain.ErrUnparsableDate, raw)
}
