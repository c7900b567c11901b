package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxIDLength bounds contest and choice identifiers.
const MaxIDLength = 128

// CheckID reports why v cannot be used as a contest or choice id. The same
// rule applies when a contest is created and when a ballot names it, so a
// stored contest is always votable.
func CheckID(v string) error {
	switch {
	case strings.TrimSpace(v) == "":
		return errors.New("is required")
	case len(v) > MaxIDLength:
		return fmt.Errorf("is longer than %d bytes", MaxIDLength)
	case !utf8.ValidString(v):
		return errors.New("is not valid UTF-8")
	}
	for _, c := range v {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return errors.New("contains whitespace or control characters")
		}
	}
	return nil
}
