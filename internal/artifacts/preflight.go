package artifacts

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/reportdeploy/pkg/exitcode"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"github.com/fulmenhq/reportdeploy/pkg/modeldoc"
	"golang.org/x/sync/errgroup"
)

// Problem is one local artifact that cannot be published.
type Problem struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

// ValidationError lists every problem found before publishing.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("artifact check failed: %s: %s", e.Problems[0].Path, e.Problems[0].Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "artifact check failed with %d problems:", len(e.Problems))
	for _, p := range e.Problems {
		fmt.Fprintf(&b, "\n  - %s: %s", p.Path, p.Message)
	}
	return b.String()
}

// ExitCode maps artifact problems to exitcode.ValidationError.
func (e *ValidationError) ExitCode() int {
	return exitcode.ValidationError
}

// Preflight parses every artifact without contacting the catalog: connection
// and report files must be well-formed XML, and each model must merge with
// its view. Files are checked concurrently, at most concurrency at a time
// (0 means GOMAXPROCS). All problems are collected and returned together.
func (inv *Inventory) Preflight(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	var (
		mu       sync.Mutex
		problems []Problem
	)
	report := func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		problems = append(problems, Problem{Path: path, Message: err.Error()})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, a := range inv.All() {
		a := a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := inv.check(a); err != nil {
				report(a.Path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(problems) > 0 {
		sort.Slice(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
		return &ValidationError{Problems: problems}
	}
	logger.Debug("Preflight passed", logger.Int("artifacts", inv.Len()))
	return nil
}

func (inv *Inventory) check(a Artifact) error {
	content, err := inv.Read(a.Path)
	if err != nil {
		return err
	}
	switch a.Kind {
	case KindModel:
		view, err := inv.Read(a.ViewPath)
		if err != nil {
			return err
		}
		_, err = modeldoc.MergeModelDefinition(content, view)
		return err
	case KindReport:
		_, err := modeldoc.ReportDataSources(content)
		return err
	default:
		return modeldoc.CheckWellFormed(content)
	}
}
