package gallery

// DefaultColumns is the column count of the gallery and search views.
const DefaultColumns = 3

// Columns distributes items round-robin over n columns: item i goes to
// column i mod n, keeping relative order within each column.
func Columns[T any](items []T, n int) [][]T {
	if n <= 0 {
		return nil
	}
	cols := make([][]T, n)
	for i, item := range items {
		cols[i%n] = append(cols[i%n], item)
	}
	return cols
}
