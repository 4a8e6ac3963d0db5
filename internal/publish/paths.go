package publish

import (
	"context"
	"fmt"

	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/logger"
)

// EnsurePath makes sure every folder along path exists, creating only the
// missing suffix in order from the root. It never deletes anything and never
// rolls back: if a create fails, the folders made so far remain.
//
// A segment held by an item that is not a folder is not treated as a conflict.
// A warning is logged and the folder create is attempted anyway; the catalog
// decides the outcome.
func EnsurePath(ctx context.Context, svc catalog.Service, path string) error {
	parent := catalog.Root
	for _, segment := range catalog.Segments(path) {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := catalog.Join(parent, segment)
		typ, err := svc.GetItemType(ctx, target)
		if err != nil {
			return fmt.Errorf("ensure %s: %w", target, err)
		}
		if typ == catalog.TypeFolder {
			parent = target
			continue
		}
		if typ.Exists() {
			logger.Warn("Path segment occupied by non-folder item",
				logger.String("path", target),
				logger.String("type", string(typ)))
		}

		item, err := svc.CreateFolder(ctx, segment, parent)
		if err != nil {
			return fmt.Errorf("ensure %s: %w", target, err)
		}
		logger.Debug("Created folder", logger.String("path", item.Path))
		parent = target
		if item.Path != "" {
			parent = catalog.Normalize(item.Path)
		}
	}
	return nil
}
