package metrics

import (
	"context"
	"time"

	"github.com/fulmenhq/reportdeploy/pkg/catalog"
)

// Service wraps a catalog.Service and records every call on a Recorder.
type Service struct {
	next catalog.Service
	rec  Recorder
	now  func() time.Time
}

// Instrument returns svc wrapped so that each operation is timed.
func Instrument(svc catalog.Service, rec Recorder) *Service {
	return &Service{next: svc, rec: rec, now: time.Now}
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.rec.RecordCall(op, s.now().Sub(start), err == nil)
}

func (s *Service) GetItemType(ctx context.Context, path string) (catalog.ItemType, error) {
	start := s.now()
	t, err := s.next.GetItemType(ctx, path)
	s.observe(catalog.OpGetItemType, start, err)
	return t, err
}

func (s *Service) CreateFolder(ctx context.Context, name, parent string) (catalog.Item, error) {
	start := s.now()
	item, err := s.next.CreateFolder(ctx, name, parent)
	s.observe(catalog.OpCreateFolder, start, err)
	return item, err
}

func (s *Service) CreateDataSource(ctx context.Context, name, parent string, overwrite bool, def catalog.ConnectionDefinition) (catalog.Item, error) {
	start := s.now()
	item, err := s.next.CreateDataSource(ctx, name, parent, overwrite, def)
	s.observe(catalog.OpCreateDataSource, start, err)
	return item, err
}

func (s *Service) CreateCatalogItem(ctx context.Context, kind catalog.ItemType, name, parent string, overwrite bool, content []byte) (catalog.Item, []catalog.Warning, error) {
	start := s.now()
	item, warnings, err := s.next.CreateCatalogItem(ctx, kind, name, parent, overwrite, content)
	s.observe(catalog.OpCreateCatalogItem, start, err)
	return item, warnings, err
}

func (s *Service) DeleteItem(ctx context.Context, path string) error {
	start := s.now()
	err := s.next.DeleteItem(ctx, path)
	s.observe(catalog.OpDeleteItem, start, err)
	return err
}

func (s *Service) ListChildren(ctx context.Context, path string, recursive bool) ([]catalog.Item, error) {
	start := s.now()
	items, err := s.next.ListChildren(ctx, path, recursive)
	s.observe(catalog.OpListChildren, start, err)
	return items, err
}

func (s *Service) GetItemDataSources(ctx context.Context, path string) ([]catalog.DataSourceBinding, error) {
	start := s.now()
	bindings, err := s.next.GetItemDataSources(ctx, path)
	s.observe(catalog.OpGetItemDataSources, start, err)
	return bindings, err
}

func (s *Service) SetItemDataSources(ctx context.Context, path string, bindings []catalog.DataSourceBinding) error {
	start := s.now()
	err := s.next.SetItemDataSources(ctx, path, bindings)
	s.observe(catalog.OpSetItemDataSources, start, err)
	return err
}

var _ catalog.Service = (*Service)(nil)
