// Package artifacts enumerates the local files a publish run uploads and
// checks them before any remote call is made.
package artifacts

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/reportdeploy/pkg/ignore"
	"github.com/fulmenhq/reportdeploy/pkg/safeio"
)

// Kind is the artifact category, derived from the file extension.
type Kind string

const (
	KindConnection Kind = "connection"
	KindModel      Kind = "model"
	KindReport     Kind = "report"
)

// File extensions for each kind. A model's view shares its base name.
const (
	ExtConnection = ".rds"
	ExtModel      = ".smdl"
	ExtView       = ".dsv"
	ExtReport     = ".rdl"
)

// Extension returns the file extension of k.
func (k Kind) Extension() string {
	switch k {
	case KindConnection:
		return ExtConnection
	case KindModel:
		return ExtModel
	case KindReport:
		return ExtReport
	default:
		return ""
	}
}

// Artifact is one local file to publish. ViewPath is only set for models.
type Artifact struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	ViewPath string `json:"view_path,omitempty" yaml:"view_path,omitempty"`
}

// Inventory holds the artifacts found under Dir, grouped by kind and sorted
// by name.
type Inventory struct {
	Dir         string
	Connections []Artifact
	Models      []Artifact
	Reports     []Artifact
}

// Options controls discovery.
type Options struct {
	// Recursive also searches subdirectories.
	Recursive bool
	// NoIgnore disables .gitignore and .publishignore handling.
	NoIgnore bool
}

// Len returns the number of artifacts.
func (inv *Inventory) Len() int {
	return len(inv.Connections) + len(inv.Models) + len(inv.Reports)
}

// All returns every artifact in publish order.
func (inv *Inventory) All() []Artifact {
	out := make([]Artifact, 0, inv.Len())
	out = append(out, inv.Connections...)
	out = append(out, inv.Models...)
	return append(out, inv.Reports...)
}

// Read returns the content of a file inside the inventory directory.
func (inv *Inventory) Read(file string) ([]byte, error) {
	data, err := safeio.ReadFileContained(inv.Dir, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}

// Discover finds connection, model and report files in dir. Names are the
// file names without extension. Two artifacts of the same kind with the same
// name (compared case-insensitively, as the catalog does) are rejected, as
// is a model without its view file.
func Discover(dir string, opts Options) (*Inventory, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "discover", Path: dir, Err: fmt.Errorf("not a directory")}
	}

	var matcher *ignore.Matcher
	if !opts.NoIgnore {
		matcher, err = ignore.NewMatcher(dir)
		if err != nil {
			return nil, fmt.Errorf("load ignore files: %w", err)
		}
	}

	inv := &Inventory{Dir: dir}
	var problems []Problem
	fsys := os.DirFS(dir)

	for _, kind := range []Kind{KindConnection, KindModel, KindReport} {
		files, err := glob(fsys, kind.Extension(), opts.Recursive)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]string)
		for _, rel := range files {
			if matcher != nil && ignored(matcher, rel) {
				continue
			}
			name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
			a := Artifact{Kind: kind, Name: name, Path: filepath.Join(dir, filepath.FromSlash(rel))}

			key := strings.ToLower(name)
			if prev, dup := seen[key]; dup {
				problems = append(problems, Problem{
					Path:    a.Path,
					Message: fmt.Sprintf("duplicate %s name %q (also %s)", kind, name, prev),
				})
				continue
			}
			seen[key] = a.Path

			if kind == KindModel {
				view, ok := findView(fsys, rel)
				if !ok {
					problems = append(problems, Problem{
						Path:    a.Path,
						Message: fmt.Sprintf("model %q has no %s file", name, ExtView),
					})
					continue
				}
				a.ViewPath = filepath.Join(dir, filepath.FromSlash(view))
			}
			inv.add(a)
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return inv, nil
}

// ignored reports whether rel, or any directory above it, is excluded.
func ignored(m *ignore.Matcher, rel string) bool {
	if m.IsIgnored(rel) {
		return true
	}
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if m.IsIgnoredDir(dir) {
			return true
		}
	}
	return false
}

func (inv *Inventory) add(a Artifact) {
	switch a.Kind {
	case KindConnection:
		inv.Connections = append(inv.Connections, a)
	case KindModel:
		inv.Models = append(inv.Models, a)
	case KindReport:
		inv.Reports = append(inv.Reports, a)
	}
}

func glob(fsys fs.FS, ext string, recursive bool) ([]string, error) {
	pattern := "*" + ext
	if recursive {
		pattern = "**/*" + ext
	}
	files, err := doublestar.Glob(fsys, pattern,
		doublestar.WithCaseInsensitive(),
		doublestar.WithFilesOnly(),
		doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i]) < strings.ToLower(files[j])
	})
	return files, nil
}

// findView locates the view file next to a model, matching the extension
// case-insensitively.
func findView(fsys fs.FS, modelRel string) (string, bool) {
	base := strings.TrimSuffix(modelRel, path.Ext(modelRel))
	matches, err := doublestar.Glob(fsys, escape(base)+ExtView,
		doublestar.WithCaseInsensitive(),
		doublestar.WithFilesOnly())
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

// escape quotes glob metacharacters in a literal path.
func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
