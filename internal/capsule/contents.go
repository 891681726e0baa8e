package capsule

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// nanosPerMilli converts client-supplied millisecond timestamps to stored nanoseconds.
const nanosPerMilli = 1_000_000

// MaxUnlockMillis is the latest unlock time (in ms) whose nanosecond value fits the store.
const MaxUnlockMillis = math.MaxInt64 / nanosPerMilli

var (
	ErrContentsEmpty = errors.New("contents must contain at least one entry")
	ErrUnlockFormat  = errors.New("unlock time must be a decimal number of milliseconds")
	ErrUnlockRange   = errors.New("unlock time is out of range")
)

// ParseContents decodes a JSON array of {"key", "value"} objects.
// Order is preserved and unknown fields are ignored.
func ParseContents(raw string) ([]Entry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrContentsEmpty
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("contents must be a JSON array of {key, value} objects: %w", err)
	}
	if err := ValidateContents(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ValidateContents checks that entries is non-empty and every key is present.
func ValidateContents(entries []Entry) error {
	if len(entries) == 0 {
		return ErrContentsEmpty
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("contents[%d]: key must not be empty", i)
		}
	}
	return nil
}

// ContentChars returns the total character count (runes) of all keys and values.
func ContentChars(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += utf8.RuneCountInString(e.Key) + utf8.RuneCountInString(e.Value)
	}
	return total
}

// ParseUnlockTime converts a decimal millisecond timestamp to nanoseconds since epoch.
func ParseUnlockTime(ms string) (uint64, error) {
	ms = strings.TrimSpace(ms)
	if ms == "" {
		return 0, ErrUnlockFormat
	}
	v, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, ErrUnlockRange
		}
		return 0, ErrUnlockFormat
	}
	if v > MaxUnlockMillis {
		return 0, ErrUnlockRange
	}
	return v * nanosPerMilli, nil
}
