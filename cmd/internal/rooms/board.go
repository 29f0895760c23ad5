package rooms

import (
	v1 "goban/shared/contracts/realtime/v1"
)

// Color identifies a side in a match.
type Color uint8

const (
	ColorBlack Color = iota
	ColorWhite
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == ColorBlack {
		return ColorWhite
	}
	return ColorBlack
}

// String returns the wire spelling of the color.
func (c Color) String() string {
	if c == ColorBlack {
		return v1.ColorBlack
	}
	return v1.ColorWhite
}

// cell is the board marker for this color; 0 marks an empty cell.
func (c Color) cell() uint8 {
	return uint8(c) + 1
}

// board holds one stone marker per cell, indexed [row][col].
type board [v1.BoardSize][v1.BoardSize]uint8

// winAt reports whether the stone just placed at (row, col) completes a
// contiguous run of five or more same-colored stones in any of the four
// directions (horizontal, vertical, both diagonals).
func winAt(b *board, row, col int) bool {
	want := b[row][col]
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for step := 1; step < 5; step++ {
			r, c := row+d[0]*step, col+d[1]*step
			if r < 0 || c < 0 || r >= v1.BoardSize || c >= v1.BoardSize || b[r][c] != want {
				break
			}
			count++
		}
		for step := 1; step < 5; step++ {
			r, c := row-d[0]*step, col-d[1]*step
			if r < 0 || c < 0 || r >= v1.BoardSize || c >= v1.BoardSize || b[r][c] != want {
				break
			}
			count++
		}
		if count >= 5 {
			return true
		}
	}
	return false
}
