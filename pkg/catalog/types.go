// Package catalog describes the remote report catalog the publisher talks to:
// item types, bindings, warnings and the Service operations it consumes.
package catalog

import (
	"context"
	"strings"
)

// ItemType is the type name the catalog reports for a path.
type ItemType string

const (
	TypeUnknown    ItemType = "Unknown" // nothing at the path
	TypeFolder     ItemType = "Folder"
	TypeDataSource ItemType = "DataSource"
	TypeModel      ItemType = "Model"
	TypeReport     ItemType = "Report"
	TypeResource   ItemType = "Resource"
	TypeLinked     ItemType = "LinkedReport"
)

// ParseItemType maps a type name returned by the server onto ItemType.
// Empty input is treated as absent.
func ParseItemType(s string) ItemType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return TypeUnknown
	case "folder":
		return TypeFolder
	case "datasource":
		return TypeDataSource
	case "model":
		return TypeModel
	case "report":
		return TypeReport
	case "resource":
		return TypeResource
	case "linkedreport":
		return TypeLinked
	default:
		return ItemType(s)
	}
}

// Exists reports whether the type denotes an item that is present.
func (t ItemType) Exists() bool {
	return t != TypeUnknown && t != ""
}

// Item is a snapshot of a catalog entry as returned by the server.
type Item struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string   `json:"name" yaml:"name"`
	Path     string   `json:"path" yaml:"path"`
	TypeName ItemType `json:"type" yaml:"type"`
}

// Warning is a non-fatal notice returned alongside a created item.
type Warning struct {
	Severity   string `json:"severity" yaml:"severity"`
	Code       string `json:"code" yaml:"code"`
	ObjectName string `json:"object_name,omitempty" yaml:"object_name,omitempty"`
	ObjectType string `json:"object_type,omitempty" yaml:"object_type,omitempty"`
	Message    string `json:"message" yaml:"message"`
}

// CredentialRetrieval selects how a shared connection obtains credentials.
type CredentialRetrieval string

const (
	CredentialsStore      CredentialRetrieval = "Store"
	CredentialsPrompt     CredentialRetrieval = "Prompt"
	CredentialsIntegrated CredentialRetrieval = "Integrated"
	CredentialsNone       CredentialRetrieval = "None"
)

// ParseCredentialRetrieval accepts the names above case-insensitively.
func ParseCredentialRetrieval(s string) (CredentialRetrieval, bool) {
	for _, c := range []CredentialRetrieval{CredentialsStore, CredentialsPrompt, CredentialsIntegrated, CredentialsNone} {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// ConnectionDefinition is the content of a shared connection (data source).
type ConnectionDefinition struct {
	Extension           string
	ConnectString       string
	CredentialRetrieval CredentialRetrieval
	WindowsCredentials  bool
	UserName            string
	Password            string
	Enabled             bool
}

// ReferenceKind tells what a binding currently points at.
type ReferenceKind int

const (
	// ReferenceShared points at a published connection or model by catalog path.
	ReferenceShared ReferenceKind = iota
	// ReferenceEmbedded carries its own connection definition.
	ReferenceEmbedded
	// ReferenceInvalid marks a binding whose previous target no longer resolves.
	ReferenceInvalid
)

func (k ReferenceKind) String() string {
	switch k {
	case ReferenceShared:
		return "shared"
	case ReferenceEmbedded:
		return "embedded"
	case ReferenceInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Reference is the target of a data-source binding. Path is set for shared
// references, Definition for embedded ones.
type Reference struct {
	Kind       ReferenceKind
	Path       string
	Definition *ConnectionDefinition
}

// SharedReference returns a reference to the item at path.
func SharedReference(path string) Reference {
	return Reference{Kind: ReferenceShared, Path: path}
}

// InvalidReference returns the marker for a binding that no longer resolves.
func InvalidReference() Reference {
	return Reference{Kind: ReferenceInvalid}
}

// EmbeddedReference returns a reference carrying its own definition.
func EmbeddedReference(def ConnectionDefinition) Reference {
	return Reference{Kind: ReferenceEmbedded, Definition: &def}
}

func (r Reference) String() string {
	switch r.Kind {
	case ReferenceShared:
		return r.Path
	case ReferenceEmbedded:
		return "<embedded>"
	case ReferenceInvalid:
		return "<invalid>"
	default:
		return "<unknown>"
	}
}

// DataSourceBinding is a named slot of an item bound to a connection or model.
// Name is unique within one item.
type DataSourceBinding struct {
	Name      string
	Reference Reference
}

// Service is the set of remote catalog operations the publisher relies on.
// Every call is a blocking round trip.
type Service interface {
	// GetItemType returns TypeUnknown when nothing exists at path.
	GetItemType(ctx context.Context, path string) (ItemType, error)
	CreateFolder(ctx context.Context, name, parent string) (Item, error)
	CreateDataSource(ctx context.Context, name, parent string, overwrite bool, def ConnectionDefinition) (Item, error)
	CreateCatalogItem(ctx context.Context, kind ItemType, name, parent string, overwrite bool, content []byte) (Item, []Warning, error)
	DeleteItem(ctx context.Context, path string) error
	ListChildren(ctx context.Context, path string, recursive bool) ([]Item, error)
	GetItemDataSources(ctx context.Context, path string) ([]DataSourceBinding, error)
	SetItemDataSources(ctx context.Context, path string, bindings []DataSourceBinding) error
}

// Operation names, shared by the implementations for errors, logs and metrics.
const (
	OpGetItemType        = "GetItemType"
	OpCreateFolder       = "CreateFolder"
	OpCreateDataSource   = "CreateDataSource"
	OpCreateCatalogItem  = "CreateCatalogItem"
	OpDeleteItem         = "DeleteItem"
	OpListChildren       = "ListChildren"
	OpGetItemDataSources = "GetItemDataSources"
	OpSetItemDataSources = "SetItemDataSources"
)
