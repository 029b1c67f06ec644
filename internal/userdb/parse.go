package userdb

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/hnrobert/lumauth/internal/hostfs"
)

// loadTable parses a colon separated account file. Blank lines, comments
// and lines with fewer than minFields fields are skipped.
func loadTable[T any](path string, minFields int, parse func([]string) (T, error)) ([]T, error) {
	b, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []T
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := s.Text()
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}
		// Keep trailing empty fields.
		fields := strings.Split(line, ":")
		if len(fields) < minFields {
			continue
		}
		e, err := parse(fields)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, e)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func atoi(field, ctx string) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("invalid int %q in %s: %w", field, ctx, err)
	}
	return n, nil
}
