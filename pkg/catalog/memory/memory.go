// Package memory is an in-process catalog.Service. It mirrors the report
// server's observable rules (parents must exist, names conflict unless
// overwrite is requested for the same type, references must resolve) and
// records every call so tests can assert on ordering.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/reportdeploy/pkg/catalog"
	"github.com/fulmenhq/reportdeploy/pkg/modeldoc"
	"github.com/google/uuid"
)

// Call is one recorded operation. Path is the target path the call acted on.
type Call struct {
	Op   string
	Path string
}

type node struct {
	item     catalog.Item
	content  []byte
	def      *catalog.ConnectionDefinition
	bindings []catalog.DataSourceBinding
	children []string
}

type failure struct {
	op   string
	path string
	err  error
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu       sync.Mutex
	nodes    map[string]*node
	calls    []Call
	warnings map[catalog.ItemType][]catalog.Warning
	failures []failure
}

var _ catalog.Service = (*Catalog)(nil)

// New returns an empty catalog containing only the root folder.
func New() *Catalog {
	c := &Catalog{
		nodes:    make(map[string]*node),
		warnings: make(map[catalog.ItemType][]catalog.Warning),
	}
	c.nodes[key(catalog.Root)] = &node{item: catalog.Item{Name: "", Path: catalog.Root, TypeName: catalog.TypeFolder}}
	return c
}

// SetWarnings makes every successful CreateCatalogItem of kind return ws.
func (c *Catalog) SetWarnings(kind catalog.ItemType, ws ...catalog.Warning) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings[kind] = ws
}

// FailOn makes op return err. An empty path matches every target.
func (c *Catalog) FailOn(op, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path != "" {
		path = catalog.Normalize(path)
	}
	c.failures = append(c.failures, failure{op: op, path: path, err: err})
}

// Calls returns the operations performed so far, in order.
func (c *Catalog) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsFor returns the target paths of every recorded call to op.
func (c *Catalog) CallsFor(op string) []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Op == op {
			out = append(out, call.Path)
		}
	}
	return out
}

// Lookup returns the item stored at path.
func (c *Catalog) Lookup(path string) (catalog.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[key(path)]
	if !ok {
		return catalog.Item{}, false
	}
	return n.item, true
}

// Content returns the uploaded definition of a model or report.
func (c *Catalog) Content(path string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[key(path)]; ok {
		return append([]byte(nil), n.content...)
	}
	return nil
}

// Definition returns the stored definition of a shared connection.
func (c *Catalog) Definition(path string) (catalog.ConnectionDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nodes[key(path)]; ok && n.def != nil {
		return *n.def, true
	}
	return catalog.ConnectionDefinition{}, false
}

func (c *Catalog) GetItemType(_ context.Context, path string) (catalog.ItemType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = catalog.Normalize(path)
	if err := c.begin(catalog.OpGetItemType, path); err != nil {
		return catalog.TypeUnknown, err
	}
	if n, ok := c.nodes[key(path)]; ok {
		return n.item.TypeName, nil
	}
	return catalog.TypeUnknown, nil
}

func (c *Catalog) CreateFolder(_ context.Context, name, parent string) (catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := catalog.Join(parent, name)
	if err := c.begin(catalog.OpCreateFolder, path); err != nil {
		return catalog.Item{}, err
	}
	p, err := c.folder(catalog.OpCreateFolder, parent)
	if err != nil {
		return catalog.Item{}, err
	}
	if _, exists := c.nodes[key(path)]; exists {
		return catalog.Item{}, alreadyExists(catalog.OpCreateFolder, path)
	}
	return c.insert(p, &node{item: newItem(name, path, catalog.TypeFolder)}), nil
}

func (c *Catalog) CreateDataSource(_ context.Context, name, parent string, overwrite bool, def catalog.ConnectionDefinition) (catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := catalog.Join(parent, name)
	if err := c.begin(catalog.OpCreateDataSource, path); err != nil {
		return catalog.Item{}, err
	}
	p, err := c.folder(catalog.OpCreateDataSource, parent)
	if err != nil {
		return catalog.Item{}, err
	}
	if existing, ok := c.nodes[key(path)]; ok {
		if !overwrite || existing.item.TypeName != catalog.TypeDataSource {
			return catalog.Item{}, alreadyExists(catalog.OpCreateDataSource, path)
		}
		existing.def = &def
		return existing.item, nil
	}
	return c.insert(p, &node{item: newItem(name, path, catalog.TypeDataSource), def: &def}), nil
}

func (c *Catalog) CreateCatalogItem(_ context.Context, kind catalog.ItemType, name, parent string, overwrite bool, content []byte) (catalog.Item, []catalog.Warning, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path := catalog.Join(parent, name)
	if err := c.begin(catalog.OpCreateCatalogItem, path); err != nil {
		return catalog.Item{}, nil, err
	}
	p, err := c.folder(catalog.OpCreateCatalogItem, parent)
	if err != nil {
		return catalog.Item{}, nil, err
	}
	bindings, err := c.declaredBindings(kind, catalog.Normalize(parent), content)
	if err != nil {
		return catalog.Item{}, nil, &catalog.Fault{Operation: catalog.OpCreateCatalogItem, Code: catalog.CodeInvalidDefinition, Message: err.Error()}
	}
	ws := append([]catalog.Warning(nil), c.warnings[kind]...)

	if existing, ok := c.nodes[key(path)]; ok {
		if !overwrite || existing.item.TypeName != kind {
			return catalog.Item{}, nil, alreadyExists(catalog.OpCreateCatalogItem, path)
		}
		existing.content = append([]byte(nil), content...)
		existing.bindings = bindings
		return existing.item, ws, nil
	}
	n := &node{
		item:     newItem(name, path, kind),
		content:  append([]byte(nil), content...),
		bindings: bindings,
	}
	return c.insert(p, n), ws, nil
}

func (c *Catalog) DeleteItem(_ context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = catalog.Normalize(path)
	if err := c.begin(catalog.OpDeleteItem, path); err != nil {
		return err
	}
	if catalog.IsRoot(path) {
		return &catalog.Fault{Operation: catalog.OpDeleteItem, Code: catalog.CodeInvalidItemPath, Message: "the root folder cannot be deleted"}
	}
	n, ok := c.nodes[key(path)]
	if !ok {
		return notFound(catalog.OpDeleteItem, path)
	}
	c.remove(n)
	parent := c.nodes[key(catalog.Parent(path))]
	for i, child := range parent.children {
		if child == key(path) {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	return nil
}

func (c *Catalog) ListChildren(_ context.Context, path string, recursive bool) ([]catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = catalog.Normalize(path)
	if err := c.begin(catalog.OpListChildren, path); err != nil {
		return nil, err
	}
	n, err := c.folder(catalog.OpListChildren, path)
	if err != nil {
		return nil, err
	}
	var out []catalog.Item
	c.collect(n, recursive, &out)
	return out, nil
}

func (c *Catalog) GetItemDataSources(_ context.Context, path string) ([]catalog.DataSourceBinding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = catalog.Normalize(path)
	if err := c.begin(catalog.OpGetItemDataSources, path); err != nil {
		return nil, err
	}
	n, err := c.bindable(catalog.OpGetItemDataSources, path)
	if err != nil {
		return nil, err
	}
	return append([]catalog.DataSourceBinding(nil), n.bindings...), nil
}

func (c *Catalog) SetItemDataSources(_ context.Context, path string, bindings []catalog.DataSourceBinding) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	path = catalog.Normalize(path)
	if err := c.begin(catalog.OpSetItemDataSources, path); err != nil {
		return err
	}
	n, err := c.bindable(catalog.OpSetItemDataSources, path)
	if err != nil {
		return err
	}

	declared := make(map[string]bool, len(n.bindings))
	for _, b := range n.bindings {
		declared[strings.ToLower(b.Name)] = true
	}
	for _, b := range bindings {
		if !declared[strings.ToLower(b.Name)] {
			return &catalog.Fault{
				Operation: catalog.OpSetItemDataSources,
				Code:      catalog.CodeDataSourceMissing,
				Message:   fmt.Sprintf("the data source '%s' is not declared by '%s'", b.Name, path),
			}
		}
		if b.Reference.Kind != catalog.ReferenceShared {
			continue
		}
		target, ok := c.nodes[key(b.Reference.Path)]
		if !ok || (target.item.TypeName != catalog.TypeDataSource && target.item.TypeName != catalog.TypeModel) {
			return notFound(catalog.OpSetItemDataSources, b.Reference.Path)
		}
	}
	n.bindings = append([]catalog.DataSourceBinding(nil), bindings...)
	return nil
}

// begin records the call and returns an injected failure, if any.
// Callers hold c.mu.
func (c *Catalog) begin(op, path string) error {
	c.calls = append(c.calls, Call{Op: op, Path: path})
	for _, f := range c.failures {
		if f.op == op && (f.path == "" || strings.EqualFold(f.path, path)) {
			return f.err
		}
	}
	return nil
}

func (c *Catalog) folder(op, path string) (*node, error) {
	n, ok := c.nodes[key(path)]
	if !ok {
		return nil, notFound(op, catalog.Normalize(path))
	}
	if n.item.TypeName != catalog.TypeFolder {
		return nil, &catalog.Fault{Operation: op, Code: catalog.CodeWrongItemType, Message: fmt.Sprintf("'%s' is not a folder", n.item.Path)}
	}
	return n, nil
}

func (c *Catalog) bindable(op, path string) (*node, error) {
	n, ok := c.nodes[key(path)]
	if !ok {
		return nil, notFound(op, path)
	}
	if n.item.TypeName != catalog.TypeModel && n.item.TypeName != catalog.TypeReport {
		return nil, &catalog.Fault{Operation: op, Code: catalog.CodeWrongItemType, Message: fmt.Sprintf("'%s' has no data sources", path)}
	}
	return n, nil
}

func (c *Catalog) insert(parent, n *node) catalog.Item {
	k := key(n.item.Path)
	c.nodes[k] = n
	parent.children = append(parent.children, k)
	return n.item
}

func (c *Catalog) remove(n *node) {
	for _, child := range n.children {
		if cn, ok := c.nodes[child]; ok {
			c.remove(cn)
		}
	}
	delete(c.nodes, key(n.item.Path))
}

func (c *Catalog) collect(n *node, recursive bool, out *[]catalog.Item) {
	for _, k := range n.children {
		child := c.nodes[k]
		*out = append(*out, child.item)
		if recursive && child.item.TypeName == catalog.TypeFolder {
			c.collect(child, true, out)
		}
	}
}

// declaredBindings derives the bindings the server would report right after
// an upload. Report references resolve relative to the report's folder.
func (c *Catalog) declaredBindings(kind catalog.ItemType, parent string, content []byte) ([]catalog.DataSourceBinding, error) {
	var (
		declared []modeldoc.DeclaredDataSource
		err      error
	)
	switch kind {
	case catalog.TypeReport:
		declared, err = modeldoc.ReportDataSources(content)
	case catalog.TypeModel:
		declared, err = modeldoc.ModelDataSources(content)
	default:
		return nil, fmt.Errorf("unsupported item type %q", kind)
	}
	if err != nil {
		return nil, err
	}

	bindings := make([]catalog.DataSourceBinding, 0, len(declared))
	for _, d := range declared {
		b := catalog.DataSourceBinding{Name: d.Name, Reference: catalog.InvalidReference()}
		switch {
		case d.Embedded:
			b.Reference = catalog.EmbeddedReference(catalog.ConnectionDefinition{
				Extension:     d.DataProvider,
				ConnectString: d.ConnectString,
				Enabled:       true,
			})
		case d.Reference != "":
			target := d.Reference
			if !strings.HasPrefix(target, "/") {
				target = catalog.Join(parent, target)
			}
			if n, ok := c.nodes[key(target)]; ok && n.item.TypeName == catalog.TypeDataSource {
				b.Reference = catalog.SharedReference(n.item.Path)
			}
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

func newItem(name, path string, t catalog.ItemType) catalog.Item {
	return catalog.Item{ID: uuid.NewString(), Name: name, Path: path, TypeName: t}
}

// key folds paths the way the server does: names are case-insensitive.
func key(path string) string {
	return strings.ToLower(catalog.Normalize(path))
}

func notFound(op, path string) error {
	return &catalog.Fault{Operation: op, Code: catalog.CodeItemNotFound, Message: fmt.Sprintf("the item '%s' cannot be found", path)}
}

func alreadyExists(op, path string) error {
	return &catalog.Fault{Operation: op, Code: catalog.CodeItemAlreadyExists, Message: fmt.Sprintf("an item with the path '%s' already exists", path)}
}
