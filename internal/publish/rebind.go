package publish

import (
	"context"
	"fmt"

	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
	"golang.org/x/text/cases"
)

// BindingChange records a binding whose reference was rewritten.
type BindingChange struct {
	Name string `json:"name" yaml:"name"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// RebindDataSources repoints the bindings of the item at itemPath:
//
//   - a binding whose name matches a model under modelsRoot (case-insensitive)
//     is pointed at modelsRoot/<name>;
//   - otherwise an invalid binding is pointed at dataSourcesRoot/<name>;
//   - any other binding is left as it is.
//
// The model match wins when both apply. The full list is written back in its
// original order with a single call, even when nothing changed.
func RebindDataSources(ctx context.Context, svc catalog.Service, itemPath, dataSourcesRoot, modelsRoot string) ([]BindingChange, error) {
	children, err := svc.ListChildren(ctx, modelsRoot, false)
	if err != nil {
		return nil, fmt.Errorf("rebind %s: list models: %w", itemPath, err)
	}
	fold := cases.Fold()
	models := make(map[string]catalog.Item, len(children))
	for _, item := range children {
		models[fold.String(item.Name)] = item
	}

	bindings, err := svc.GetItemDataSources(ctx, itemPath)
	if err != nil {
		return nil, fmt.Errorf("rebind %s: %w", itemPath, err)
	}

	var changes []BindingChange
	updated := make([]catalog.DataSourceBinding, 0, len(bindings))
	for _, b := range bindings {
		next := b
		switch {
		case hasKey(models, fold.String(b.Name)):
			next.Reference = catalog.SharedReference(catalog.Join(modelsRoot, b.Name))
		case b.Reference.Kind == catalog.ReferenceInvalid:
			next.Reference = catalog.SharedReference(catalog.Join(dataSourcesRoot, b.Name))
		}
		if next.Reference != b.Reference {
			changes = append(changes, BindingChange{Name: b.Name, From: b.Reference.String(), To: next.Reference.String()})
		}
		updated = append(updated, next)
	}

	if err := svc.SetItemDataSources(ctx, itemPath, updated); err != nil {
		return nil, fmt.Errorf("rebind %s: %w", itemPath, err)
	}
	for _, c := range changes {
		logger.Debug("Rebound data source",
			logger.String("item", itemPath),
			logger.String("binding", c.Name),
			logger.String("to", c.To))
	}
	return changes, nil
}

func hasKey(m map[string]catalog.Item, key string) bool {
	_, ok := m[key]
	return ok
}
