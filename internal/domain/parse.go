package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClock = errors.New("invalid clock time")
	ErrInvalidEmail = errors.New("invalid email address")
)

// ParseClock validates "H:MM" or "HH:MM" and returns the normalised "HH:MM".
func ParseClock(s string) (string, error) {
	mins, err := parseHHMM(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidClock, err)
	}
	return FormatMinutes(mins), nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, errors.New("invalid minute")
	}
	return h*60 + m, nil
}

// FormatMinutes returns HH:MM for minutes since midnight (00:00..23:59).
func FormatMinutes(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := mins / 60
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ValidateTZ resolves an IANA location name. "Local" and "" mean the server zone.
func ValidateTZ(tz string) (*time.Location, error) {
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// ValidateEmail trims and lower-cases addr and checks it is a bare address.
func ValidateEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, addr)
	}
	return addr, nil
}
