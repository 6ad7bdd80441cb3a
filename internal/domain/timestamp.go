package domain

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseTimestamp converts "HH:MM:SS", "MM:SS", or plain seconds into seconds.
func ParseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Mark(errors.New("empty timestamp"), ErrValidation)
	}

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		sec, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || sec < 0 {
			return 0, errors.Mark(errors.Newf("invalid timestamp format: %q", s), ErrValidation)
		}
		return sec, nil
	case 2, 3:
		total := 0.0
		for _, p := range parts {
			n, err := strconv.ParseFloat(p, 64)
			if err != nil || n < 0 {
				return 0, errors.Mark(errors.Newf("invalid timestamp format: %q", s), ErrValidation)
			}
			total = total*60 + n
		}
		return total, nil
	default:
		return 0, errors.Mark(errors.Newf("invalid timestamp format: %q", s), ErrValidation)
	}
}
