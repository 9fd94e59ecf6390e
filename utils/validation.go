package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var ErrInvalidFileName = errors.New("invalid file name")

var reservedNames = []string{
	"CON", "PRN", "AUX", "NUL",
	"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
	"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
}

// ValidateFileName rejects names that cannot be stored or served safely.
func ValidateFileName(filename string) error {
	switch {
	case filename == "" || filename == "." || filename == "..":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidFileName)
	case len(filename) > 255:
		return fmt.Errorf("%w: name too long (max 255 bytes)", ErrInvalidFileName)
	case !utf8.ValidString(filename):
		return fmt.Errorf("%w: name is not valid UTF-8", ErrInvalidFileName)
	}

	if i := strings.IndexAny(filename, "<>:\"|?*/\\\x00"); i >= 0 {
		return fmt.Errorf("%w: invalid character %q", ErrInvalidFileName, filename[i])
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, reserved := range reservedNames {
		if strings.EqualFold(base, reserved) {
			return fmt.Errorf("%w: reserved name %s", ErrInvalidFileName, reserved)
		}
	}
	return nil
}
