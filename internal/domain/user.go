package domain

import (
	"strings"
	"time"
)

// Defaults applied to new accounts.
const (
	DefaultTargetMin = 120
	DefaultEmailTime = "20:00"
)

// User is the account whose study time is reported. Owned by the settings
// flow; the reporting path only reads it.
type User struct {
	ID                 int64
	Email              string
	Username           string
	DailyTargetMin     int    // study goal in minutes per day
	DailyEmailTime     string // HH:MM, read in the report location
	EmailServicePaused bool
	CreatedAt          time.Time
}

// DisplayName returns the username, falling back to the email local part.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Session is one finished study session.
type Session struct {
	ID              int64
	UserID          int64
	Start           int64 // epoch ms
	End             int64 // epoch ms
	DurationSeconds int
	TopicText       string
	IsPrivate       bool
}

func (s *Session) StartTime() time.Time { return time.UnixMilli(s.Start) }

func (s *Session) EndTime() time.Time { return time.UnixMilli(s.End) }

// Recipient is an accountability partner who receives a user's daily report.
// LastSentDate is the DayKey of the last claimed send, nil if never sent or reset.
type Recipient struct {
	ID           int64
	UserID       int64
	Email        string
	LastSentDate *string
}

// SentOn reports whether the recipient was already claimed for day.
func (r *Recipient) SentOn(day string) bool {
	return r.LastSentDate != nil && *r.LastSentDate == day
}

// TotalSeconds sums session durations.
func TotalSeconds(sessions []Session) int {
	total := 0
	for _, s := range sessions {
		total += s.DurationSeconds
	}
	return total
}
