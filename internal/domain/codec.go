package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedBoard is returned by ParseBoard.
var ErrMalformedBoard = errors.New("malformed board")

const sep = ","

// String formats b with FormatBoard.
func (b Board) String() string { return FormatBoard(b) }

// FormatBoard joins the nine cells with commas, empty cells as empty tokens:
// "X,,O,,,,,,".
func FormatBoard(b Board) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = c.String()
	}
	return strings.Join(parts, sep)
}

// ParseBoard is the inverse of FormatBoard.
func ParseBoard(s string) (Board, error) {
	var b Board
	parts := strings.Split(s, sep)
	if len(parts) != len(b) {
		return Board{}, fmt.Errorf("%w: want %d cells, got %d", ErrMalformedBoard, len(b), len(parts))
	}
	for i, p := range parts {
		c, err := ParseCell(p)
		if err != nil {
			return Board{}, fmt.Errorf("cell %d: %w", i, err)
		}
		b[i] = c
	}
	return b, nil
}

// ParseCell accepts "", "X" or "O", ignoring case and surrounding space.
func ParseCell(s string) (Cell, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return Empty, nil
	case "X":
		return X, nil
	case "O":
		return O, nil
	default:
		return Empty, fmt.Errorf("%w: unknown cell %q", ErrMalformedBoard, s)
	}
}
