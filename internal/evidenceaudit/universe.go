package evidenceaudit

import "strings"

// PathUniverse is the canonical set of repo-relative paths covered by the
// stored table (the run's --parquet input). The runner treats the table
// itself as an opaque engine input; it only needs the set of paths it
// covers, which the run coordinator resolves once per run via a dedicated
// preflight query and hands to the auditor as a plain path list.
type PathUniverse map[string]bool

// NewPathUniverse builds a PathUniverse from a flat list of repo-relative
// paths, normalizing separators so lookups match Canonicalize's output.
func NewPathUniverse(paths []string) PathUniverse {
	u := make(PathUniverse, len(paths))
	for _, p := range paths {
		p = strings.ReplaceAll(p, "\\", "/")
		p = strings.TrimPrefix(p, "./")
		if p != "" {
			u[p] = true
		}
	}
	return u
}

// Contains reports whether a canonical path is present in the table's path
// universe.
func (u PathUniverse) Contains(path string) bool {
	return u[path]
}
