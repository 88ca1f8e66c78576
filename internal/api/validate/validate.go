// Package validate checks request fields before they reach the services.
package validate

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// tagIDRx matches catalog ids such as "happy" or "work_location".
var tagIDRx = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

const (
	MinPasswordLen = 6
	MaxPasswordLen = 72 // bcrypt ignores bytes past 72
	MaxEntryText   = 5000
)

func Email(v string) error {
	if v == "" {
		return fmt.Errorf("email is required")
	}
	if len(v) > 320 || !emailRx.MatchString(v) {
		return fmt.Errorf("invalid email")
	}
	return nil
}

func Password(v string) error {
	if len(v) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(v) > MaxPasswordLen {
		return fmt.Errorf("password exceeds %d bytes", MaxPasswordLen)
	}
	return nil
}

// EntryText bounds the free text of a draft; empty is allowed.
func EntryText(v string) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("text must be valid UTF-8")
	}
	if utf8.RuneCountInString(v) > MaxEntryText {
		return fmt.Errorf("text exceeds %d characters", MaxEntryText)
	}
	return nil
}

func TagID(v string) error {
	if !tagIDRx.MatchString(v) {
		return fmt.Errorf("invalid tag id %q", v)
	}
	return nil
}

// -------- Request specific helpers ----------

// Credentials validates a sign-up request.
func Credentials(email, password string) error {
	if err := Email(email); err != nil {
		return err
	}
	return Password(password)
}
