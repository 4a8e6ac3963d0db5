// Package modeldoc holds the XML transforms applied to report-platform
// documents before and after they are uploaded.
package modeldoc

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrNoRoot is returned for documents without a root element.
var ErrNoRoot = errors.New("document has no root element")

// MergeModelDefinition embeds a data-source-view document into a semantic
// model document. A deep copy of the view's root element is appended as the
// last child of the model's root element; nothing else in either document is
// touched. The result carries an XML declaration.
func MergeModelDefinition(modelDoc, viewDoc []byte) ([]byte, error) {
	model, err := parse(modelDoc)
	if err != nil {
		return nil, fmt.Errorf("model definition: %w", err)
	}
	view, err := parse(viewDoc)
	if err != nil {
		return nil, fmt.Errorf("data source view: %w", err)
	}

	model.Root().AddChild(view.Root().Copy())

	if !hasDeclaration(model) {
		model.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="utf-8"`))
	}

	out, err := model.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize merged model: %w", err)
	}
	return out, nil
}

// CheckWellFormed parses content and reports whether it has a root element.
func CheckWellFormed(content []byte) error {
	_, err := parse(content)
	return err
}

func parse(content []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		return nil, fmt.Errorf("XML is not well-formed: %w", err)
	}
	if doc.Root() == nil {
		return nil, ErrNoRoot
	}
	return doc, nil
}

func hasDeclaration(doc *etree.Document) bool {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			return true
		}
	}
	return false
}
