package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Clean reduces one raw program line to the canonical form sent to the
// controller: parenthesized comments are removed (nesting tracked, stray
// closing parentheses never drive the depth negative), everything from the
// first ';' on is dropped, all whitespace is removed (including internal,
// some firmware variants require this) and letters are upper-cased.
// An empty result means the line carries no command and must be skipped.
func Clean(line string) string {
	var unCommented strings.Builder
	unCommented.Grow(len(line))
	depth := 0
	for _, r := range line {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			unCommented.WriteRune(r)
		}
	}

	s := unCommented.String()
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}

	var cleaned strings.Builder
	cleaned.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		cleaned.WriteRune(unicode.ToUpper(r))
	}
	return cleaned.String()
}

// Sanitize reads raw program lines from r, cleans each with Clean, discards
// empty results and writes one newline terminated command per retained line
// to w. It returns the count of retained lines, which is the total used for
// job progress and completion detection.
func Sanitize(r io.Reader, w io.Writer) (int, error) {
	retained := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := Clean(scanner.Text())
		if len(line) == 0 {
			continue
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return retained, fmt.Errorf("failed to write sanitized line: %w", err)
		}
		retained++
	}
	if err := scanner.Err(); err != nil {
		return retained, fmt.Errorf("failed to read source: %w", err)
	}
	return retained, nil
}

// SanitizeFile sanitizes the program at srcPath into destPath, truncating
// destPath first, and returns the retained line count.
func SanitizeFile(srcPath, destPath string) (retained int, err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	dest, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(0644))
	if err != nil {
		return 0, err
	}
	defer func() { err = errors.Join(err, dest.Close()) }()

	return Sanitize(src, dest)
}
