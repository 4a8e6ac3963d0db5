package catalog

import "strings"

// Root is the catalog root path.
const Root = "/"

// Segments splits a catalog path into its non-empty names. Backslashes are
// accepted as separators so paths built on Windows still resolve.
func Segments(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Normalize returns p with a single leading slash and no trailing slash.
// The root normalizes to "/".
func Normalize(p string) string {
	segs := Segments(p)
	if len(segs) == 0 {
		return Root
	}
	return "/" + strings.Join(segs, "/")
}

// Join appends names to parent and normalizes the result.
func Join(parent string, names ...string) string {
	all := Segments(parent)
	for _, n := range names {
		all = append(all, Segments(n)...)
	}
	if len(all) == 0 {
		return Root
	}
	return "/" + strings.Join(all, "/")
}

// Parent returns the folder that contains p. The parent of the root is the root.
func Parent(p string) string {
	segs := Segments(p)
	if len(segs) <= 1 {
		return Root
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/")
}

// IsRoot reports whether p denotes the catalog root.
func IsRoot(p string) bool {
	return len(Segments(p)) == 0
}
