package transform

import "github.com/dshills/fcdrag/internal/preflight"

// ApplyShapePreserving writes the result of a filter pass back onto the
// artifact without changing its original shape:
//
//   - dict-shaped stdout: the filtered rows go in the sibling field
//     StdoutRowsFiltered; Stdout itself, and its key set, are untouched.
//   - list-shaped stdout: Stdout is replaced with the filtered list; the
//     original list is preserved under StdoutRaw.
func ApplyShapePreserving(artifact *preflight.Artifact, filteredRows []any) {
	switch {
	case preflight.IsDict(artifact.Stdout):
		artifact.StdoutRowsFiltered = asAnySlice(filteredRows)
	case preflight.IsList(artifact.Stdout):
		artifact.StdoutRaw = artifact.Stdout
		artifact.Stdout = asAnySlice(filteredRows)
	default:
		// Raw text or nil stdout: nothing row-shaped to preserve.
	}
}

func asAnySlice(rows []any) []any {
	if rows == nil {
		return []any{}
	}
	return rows
}
