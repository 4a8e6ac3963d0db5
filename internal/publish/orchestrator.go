package publish

import (
	"context"
	"time"

	"github.com/fulmenhq/reportdeploy/internal/artifacts"
	"github.com/fulmenhq/reportdeploy/internal/gitctx"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"github.com/google/uuid"
)

// Layout names the catalog folders a run publishes into.
type Layout struct {
	Root        string `json:"root" yaml:"root"`
	Connections string `json:"connections" yaml:"connections"`
	Models      string `json:"models" yaml:"models"`
	Reports     string `json:"reports" yaml:"reports"`
}

// Reporter observes per-item progress. Implementations must not block.
type Reporter interface {
	ItemStarted(kind artifacts.Kind, name, root string)
	ItemFinished(r *Result)
	ItemFailed(kind artifacts.Kind, name string, err error)
}

// Options configures an Orchestrator.
type Options struct {
	Layout     Layout
	Connection catalog.ConnectionDefinition
	Reporters  []Reporter
	DryRun     bool
	// Revision is the git state of the artifacts, when known.
	Revision *gitctx.Revision
}

// Summary is the outcome of one run. It is filled in as the run progresses,
// so a failed run still lists what was published before the failure.
type Summary struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	DryRun     bool             `json:"dry_run" yaml:"dry_run"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time        `json:"finished_at" yaml:"finished_at"`
	Status     string           `json:"status" yaml:"status"`
	Error      string           `json:"error,omitempty" yaml:"error,omitempty"`
	Layout     Layout           `json:"layout" yaml:"layout"`
	Revision   *gitctx.Revision `json:"revision,omitempty" yaml:"revision,omitempty"`
	Items      []*Result        `json:"items" yaml:"items"`
}

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Warnings returns the number of warnings across all items.
func (s *Summary) Warnings() int {
	n := 0
	for _, r := range s.Items {
		n += len(r.Warnings)
	}
	return n
}

// Count returns the number of published items of kind.
func (s *Summary) Count(kind artifacts.Kind) int {
	n := 0
	for _, r := range s.Items {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Orchestrator runs a publish in a fixed order: folders, connections, models
// (each rebound), reports (each rebound). Calls are strictly sequential and
// the first error ends the run without undoing earlier work.
type Orchestrator struct {
	svc  catalog.Service
	opts Options
}

// New returns an Orchestrator publishing to svc.
func New(svc catalog.Service, opts Options) *Orchestrator {
	return &Orchestrator{svc: svc, opts: opts}
}

// Run publishes everything in inv. The returned summary is never nil.
func (o *Orchestrator) Run(ctx context.Context, inv *artifacts.Inventory) (*Summary, error) {
	layout := o.opts.Layout
	s := &Summary{
		RunID:     uuid.NewString(),
		DryRun:    o.opts.DryRun,
		StartedAt: time.Now().UTC(),
		Layout:    layout,
		Revision:  o.opts.Revision,
		Items:     []*Result{},
	}
	log := logger.Default().With(logger.String("run_id", s.RunID))
	if rev := s.Revision; rev != nil {
		log = log.With(logger.String("git_sha", rev.Short()), logger.Bool("dirty", rev.Dirty))
	}
	log.Log(logger.InfoLevel, "Starting publish",
		logger.String("root", layout.Root),
		logger.Int("connections", len(inv.Connections)),
		logger.Int("models", len(inv.Models)),
		logger.Int("reports", len(inv.Reports)))

	err := o.run(ctx, inv, s)
	s.FinishedAt = time.Now().UTC()
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
		log.Log(logger.ErrorLevel, "Publish failed", logger.Int("published", len(s.Items)), logger.Err(err))
		return s, err
	}
	s.Status = StatusCompleted
	log.Log(logger.InfoLevel, "Publish completed",
		logger.Int("published", len(s.Items)),
		logger.Int("warnings", s.Warnings()))
	return s, nil
}

func (o *Orchestrator) run(ctx context.Context, inv *artifacts.Inventory, s *Summary) error {
	layout := o.opts.Layout
	pub := NewPublisher(o.svc, inv)

	for _, folder := range []string{layout.Root, layout.Connections, layout.Models, layout.Reports} {
		if err := EnsurePath(ctx, o.svc, folder); err != nil {
			return err
		}
	}

	for _, a := range inv.Connections {
		if err := o.step(ctx, s, a, layout.Connections, func() (*Result, error) {
			return pub.PublishConnection(ctx, layout.Connections, a, o.opts.Connection)
		}); err != nil {
			return err
		}
	}

	for _, a := range inv.Models {
		if err := o.step(ctx, s, a, layout.Models, func() (*Result, error) {
			r, err := pub.PublishModel(ctx, layout.Models, a.Name, a)
			if err != nil {
				return nil, err
			}
			r.Rebound, err = RebindDataSources(ctx, o.svc, r.Path, layout.Connections, layout.Models)
			return r, err
		}); err != nil {
			return err
		}
	}

	for _, a := range inv.Reports {
		if err := o.step(ctx, s, a, layout.Reports, func() (*Result, error) {
			r, err := pub.PublishReport(ctx, layout.Reports, a)
			if err != nil {
				return nil, err
			}
			r.Rebound, err = RebindDataSources(ctx, o.svc, r.Path, layout.Connections, layout.Models)
			return r, err
		}); err != nil {
			return err
		}
	}
	return nil
}

// step publishes one artifact and notifies reporters. A published item whose
// rebind fails is still recorded in the summary.
func (o *Orchestrator) step(ctx context.Context, s *Summary, a artifacts.Artifact, root string, fn func() (*Result, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, rep := range o.opts.Reporters {
		rep.ItemStarted(a.Kind, a.Name, root)
	}
	r, err := fn()
	if r != nil {
		s.Items = append(s.Items, r)
	}
	if err != nil {
		for _, rep := range o.opts.Reporters {
			rep.ItemFailed(a.Kind, a.Name, err)
		}
		return err
	}
	for _, rep := range o.opts.Reporters {
		rep.ItemFinished(r)
	}
	return nil
}
