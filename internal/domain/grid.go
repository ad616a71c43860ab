package domain

import (
	"fmt"
	"strings"
)

// GridSize is the Sudoku edge length; BoxSize the 3x3 block edge.
const (
	GridSize = 9
	BoxSize  = 3
)

// Grid is a 9x9 Sudoku grid; 0 marks an empty cell.
type Grid [][]int

// ParseGridRows converts the HTTP submission form (nine strings of nine
// characters, digits or underscore for empty) into a Grid.
func ParseGridRows(rows []string) (Grid, error) {
	if len(rows) != GridSize {
		return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrInvalidArgument, GridSize, len(rows))
	}
	g := make(Grid, GridSize)
	for i, row := range rows {
		if len(row) != GridSize {
			return nil, fmt.Errorf("%w: row %d has length %d, expected %d", ErrInvalidArgument, i, len(row), GridSize)
		}
		g[i] = make([]int, GridSize)
		for j, ch := range row {
			switch {
			case ch == '_':
				g[i][j] = 0
			case ch >= '0' && ch <= '9':
				g[i][j] = int(ch - '0')
			default:
				return nil, fmt.Errorf("%w: row %d contains invalid character %q", ErrInvalidArgument, i, ch)
			}
		}
	}
	return g, nil
}

// GridFromData extracts the grid out of a Problem's free-form data mapping.
// The mapping may hold either [][]int (in-process) or []any of []any with
// numeric cells (after a codec round-trip).
func GridFromData(data map[string]any) (Grid, error) {
	raw, ok := data["grid"]
	if !ok {
		return nil, fmt.Errorf("%w: problem_data missing grid", ErrEncoder)
	}
	if g, ok := raw.(Grid); ok {
		return g, nil
	}
	if g, ok := raw.([][]int); ok {
		return g, nil
	}
	rows, ok := raw.([]any)
	if !ok || len(rows) != GridSize {
		return nil, fmt.Errorf("%w: grid is not a %dx%d matrix", ErrEncoder, GridSize, GridSize)
	}
	g := make(Grid, GridSize)
	for i, r := range rows {
		cells, ok := r.([]any)
		if !ok || len(cells) != GridSize {
			return nil, fmt.Errorf("%w: grid row %d is not %d cells", ErrEncoder, i, GridSize)
		}
		g[i] = make([]int, GridSize)
		for j, c := range cells {
			v, err := toInt(c)
			if err != nil {
				return nil, fmt.Errorf("%w: grid cell (%d,%d): %v", ErrEncoder, i, j, err)
			}
			if v < 0 || v > GridSize {
				return nil, fmt.Errorf("%w: grid cell (%d,%d) out of range: %d", ErrEncoder, i, j, v)
			}
			g[i][j] = v
		}
	}
	return g, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("unexpected cell type %T", v)
}

// Stringify renders the grid with box separators, underscores for empties.
func (g Grid) Stringify() string {
	var b strings.Builder
	for i := 0; i < GridSize; i++ {
		for j := 0; j < GridSize; j++ {
			if g[i][j] == 0 {
				b.WriteByte('_')
			} else {
				b.WriteByte(byte('0' + g[i][j]))
			}
			b.WriteByte(' ')
			if (j+1)%BoxSize == 0 && j < GridSize-1 {
				b.WriteString("| ")
			}
		}
		b.WriteByte('\n')
		if (i+1)%BoxSize == 0 && i < GridSize-1 {
			b.WriteString("------|-------|------\n")
		}
	}
	return b.String()
}

// IsCompleteValid reports whether the grid is a fully filled valid Sudoku
// completion (every row, column, and box holds 1..9 exactly once).
func (g Grid) IsCompleteValid() bool {
	check := func(cells [GridSize]int) bool {
		var seen [GridSize + 1]bool
		for _, v := range cells {
			if v < 1 || v > GridSize || seen[v] {
				return false
			}
			seen[v] = true
		}
		return true
	}
	for i := 0; i < GridSize; i++ {
		var row, col [GridSize]int
		for j := 0; j < GridSize; j++ {
			row[j] = g[i][j]
			col[j] = g[j][i]
		}
		if !check(row) || !check(col) {
			return false
		}
	}
	for bi := 0; bi < BoxSize; bi++ {
		for bj := 0; bj < BoxSize; bj++ {
			var box [GridSize]int
			n := 0
			for i := bi * BoxSize; i < (bi+1)*BoxSize; i++ {
				for j := bj * BoxSize; j < (bj+1)*BoxSize; j++ {
					box[n] = g[i][j]
					n++
				}
			}
			if !check(box) {
				return false
			}
		}
	}
	return true
}

// PreservesClues reports whether every nonzero cell of the original clues
// appears unchanged in the solved grid.
func (g Grid) PreservesClues(clues Grid) bool {
	for i := 0; i < GridSize; i++ {
		for j := 0; j < GridSize; j++ {
			if clues[i][j] != 0 && g[i][j] != clues[i][j] {
				return false
			}
		}
	}
	return true
}
