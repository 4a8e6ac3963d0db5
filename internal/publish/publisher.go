// Package publish uploads local report artifacts into a remote catalog:
// folders first, then connections, models and reports, repointing each
// item's data-source bindings at the shared published resources.
package publish

import (
	"context"
	"fmt"

	"github.com/fulmenhq/reportdeploy/internal/artifacts"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"github.com/fulmenhq/reportdeploy/pkg/modeldoc"
)

// ConnectionExtension is the data provider of every published connection.
const ConnectionExtension = "SQL"

// Source reads local artifact content.
type Source interface {
	Read(file string) ([]byte, error)
}

// Result describes one published item.
type Result struct {
	Kind     artifacts.Kind    `json:"kind" yaml:"kind"`
	Name     string            `json:"name" yaml:"name"`
	Path     string            `json:"path" yaml:"path"`
	Source   string            `json:"source" yaml:"source"`
	Item     catalog.Item      `json:"item" yaml:"item"`
	Replaced bool              `json:"replaced,omitempty" yaml:"replaced,omitempty"`
	Warnings []catalog.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Rebound  []BindingChange   `json:"rebound,omitempty" yaml:"rebound,omitempty"`
}

// Publisher creates or replaces single catalog items. Every remote error is
// returned as is; nothing is retried at this layer.
type Publisher struct {
	svc catalog.Service
	src Source
}

// NewPublisher returns a Publisher writing to svc and reading from src.
func NewPublisher(svc catalog.Service, src Source) *Publisher {
	return &Publisher{svc: svc, src: src}
}

// PublishConnection creates the shared connection named after the artifact
// under root, overwriting any existing one. The definition comes from
// settings; the file content is not uploaded.
func (p *Publisher) PublishConnection(ctx context.Context, root string, a artifacts.Artifact, settings catalog.ConnectionDefinition) (*Result, error) {
	def := settings
	def.Extension = ConnectionExtension
	def.Enabled = true
	if def.CredentialRetrieval == "" {
		def.CredentialRetrieval = catalog.CredentialsStore
	}

	item, err := p.svc.CreateDataSource(ctx, a.Name, root, true, def)
	if err != nil {
		return nil, fmt.Errorf("publish connection %s: %w", a.Name, err)
	}
	return newResult(a, root, item, nil), nil
}

// PublishModel replaces the model named name under root. An existing model
// is deleted first because model creation cannot overwrite; the merged
// model and view document is then uploaded without overwrite.
func (p *Publisher) PublishModel(ctx context.Context, root, name string, a artifacts.Artifact) (*Result, error) {
	target := catalog.Join(root, name)
	typ, err := p.svc.GetItemType(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("publish model %s: %w", name, err)
	}
	replaced := false
	if typ == catalog.TypeModel {
		if err := p.svc.DeleteItem(ctx, target); err != nil {
			return nil, fmt.Errorf("publish model %s: delete existing: %w", name, err)
		}
		replaced = true
		logger.Debug("Deleted existing model", logger.String("path", target))
	}

	modelDoc, err := p.src.Read(a.Path)
	if err != nil {
		return nil, fmt.Errorf("publish model %s: %w", name, err)
	}
	viewDoc, err := p.src.Read(a.ViewPath)
	if err != nil {
		return nil, fmt.Errorf("publish model %s: %w", name, err)
	}
	merged, err := modeldoc.MergeModelDefinition(modelDoc, viewDoc)
	if err != nil {
		return nil, fmt.Errorf("publish model %s: %w", name, err)
	}

	item, warnings, err := p.svc.CreateCatalogItem(ctx, catalog.TypeModel, name, root, false, merged)
	if err != nil {
		return nil, fmt.Errorf("publish model %s: %w", name, err)
	}
	logWarnings(item, warnings)

	r := newResult(a, root, item, warnings)
	r.Name = name
	r.Replaced = replaced
	return r, nil
}

// PublishReport uploads the report under root, overwriting atomically.
func (p *Publisher) PublishReport(ctx context.Context, root string, a artifacts.Artifact) (*Result, error) {
	content, err := p.src.Read(a.Path)
	if err != nil {
		return nil, fmt.Errorf("publish report %s: %w", a.Name, err)
	}

	item, warnings, err := p.svc.CreateCatalogItem(ctx, catalog.TypeReport, a.Name, root, true, content)
	if err != nil {
		return nil, fmt.Errorf("publish report %s: %w", a.Name, err)
	}
	logWarnings(item, warnings)
	return newResult(a, root, item, warnings), nil
}

func newResult(a artifacts.Artifact, root string, item catalog.Item, warnings []catalog.Warning) *Result {
	path := item.Path
	if path == "" {
		path = catalog.Join(root, a.Name)
	}
	return &Result{
		Kind:     a.Kind,
		Name:     a.Name,
		Path:     catalog.Normalize(path),
		Source:   a.Path,
		Item:     item,
		Warnings: warnings,
	}
}

func logWarnings(item catalog.Item, warnings []catalog.Warning) {
	for _, w := range warnings {
		logger.Warn(w.Message,
			logger.String("item", item.Path),
			logger.String("severity", w.Severity),
			logger.String("code", w.Code))
	}
}
