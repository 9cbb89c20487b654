// internal/pkg/lotcode/lotcode.go
package lotcode

import (
	"fmt"
	"regexp"
)

// Internal lot codes are two base-26 letters followed by three base-10
// digits: AA000, AA001, ... AZ999, BA000, ... ZZ999, then wrapping back
// to AA000.

const (
	// First is the code handed out when no lot has ever been issued.
	First = "AA000"

	digitsPerPrefix = 1000 // 000-999
)

var codePattern = regexp.MustCompile(`^[A-Z]{2}[0-9]{3}$`)

// Valid reports whether s is a well-formed internal lot code.
func Valid(s string) bool {
	return codePattern.MatchString(s)
}

// Next returns the code following current. An empty current yields First.
func Next(current string) (string, error) {
	if current == "" {
		return First, nil
	}
	if !Valid(current) {
		return "", fmt.Errorf("malformed lot code %q", current)
	}

	number := int(current[3]-'0')*10 + int(current[4]-'0') + int(current[2]-'0')*100
	number++
	if number < digitsPerPrefix {
		return fmt.Sprintf("%c%c%03d", current[0], current[1], number), nil
	}

	// Digits rolled over, advance the letter pair.
	first, second := current[0], current[1]
	if second < 'Z' {
		second++
	} else if first < 'Z' {
		second = 'A'
		first++
	} else {
		// ZZ999 wraps around.
		return First, nil
	}
	return fmt.Sprintf("%c%c000", first, second), nil
}
