package catalog

import (
	"context"
	"fmt"
)

// WalkFunc is called for each item found by Walk. depth is 0 for direct
// children of the walk root.
type WalkFunc func(item Item, depth int) error

// Walk lists root depth-first, descending into folders one level at a time
// and calling fn for every item in server order.
func Walk(ctx context.Context, svc Service, root string, fn WalkFunc) error {
	return walk(ctx, svc, Normalize(root), 0, fn)
}

func walk(ctx context.Context, svc Service, path string, depth int, fn WalkFunc) error {
	items, err := svc.ListChildren(ctx, path, false)
	if err != nil {
		return fmt.Errorf("list %s: %w", path, err)
	}
	for _, item := range items {
		if err := fn(item, depth); err != nil {
			return err
		}
		if item.TypeName == TypeFolder {
			if err := walk(ctx, svc, item.Path, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
