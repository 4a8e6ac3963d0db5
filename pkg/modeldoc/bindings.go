package modeldoc

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// DeclaredDataSource is a data source named inside a report or model
// definition, before the server resolves it.
type DeclaredDataSource struct {
	Name string
	// Reference is the shared data source the document asks for, if any.
	Reference string
	// Embedded is set when the document carries its own connection.
	Embedded      bool
	DataProvider  string
	ConnectString string
}

// ReportDataSources lists the data sources declared by a report definition
// (RDL) in document order.
func ReportDataSources(content []byte) ([]DeclaredDataSource, error) {
	doc, err := parse(content)
	if err != nil {
		return nil, err
	}
	var out []DeclaredDataSource
	for _, el := range doc.Root().FindElements("./DataSources/DataSource") {
		ds := DeclaredDataSource{Name: el.SelectAttrValue("Name", "")}
		if ds.Name == "" {
			return nil, fmt.Errorf("report data source without a Name attribute")
		}
		if ref := el.SelectElement("DataSourceReference"); ref != nil {
			ds.Reference = strings.TrimSpace(ref.Text())
		} else if props := el.SelectElement("ConnectionProperties"); props != nil {
			ds.Embedded = true
			ds.DataProvider = childText(props, "DataProvider")
			ds.ConnectString = childText(props, "ConnectString")
		}
		out = append(out, ds)
	}
	return out, nil
}

// ModelDataSources lists the data sources declared by the data source view
// embedded in a merged semantic model. Model data sources are never bound to
// a shared connection at upload time.
func ModelDataSources(content []byte) ([]DeclaredDataSource, error) {
	doc, err := parse(content)
	if err != nil {
		return nil, err
	}
	var out []DeclaredDataSource
	seen := make(map[string]bool)
	for _, el := range doc.Root().FindElements(".//DataSourceView/DataSources/DataSource") {
		name := childText(el, "Name")
		if name == "" {
			name = childText(el, "ID")
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, DeclaredDataSource{Name: name})
	}
	return out, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
