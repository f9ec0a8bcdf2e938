package watch

import (
	"sort"
	"strings"
)

// Ancestors returns the parent directories of path, nearest first, excluding
// path itself and the root. Ancestors("/a/b/c") is ["/a/b", "/a"].
func Ancestors(path string) []string {
	var out []string
	path = strings.TrimRight(path, "/")
	for {
		i := strings.LastIndexByte(path, '/')
		if i <= 0 {
			return out
		}
		path = path[:i]
		out = append(out, path)
	}
}

// AncestorsUnion returns the sorted, deduplicated union of Ancestors over
// paths: the directories that must exist before the files can be written.
// Sorted order puts every parent before its children.
func AncestorsUnion(paths []string) []string {
	seen := make(map[string]struct{})
	for _, p := range paths {
		for _, dir := range Ancestors(p) {
			seen[dir] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for dir := range seen {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}
