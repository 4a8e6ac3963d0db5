package soap

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/fulmenhq/reportdeploy/pkg/catalog"
)

// Namespace is the ReportService2010 target namespace. SOAPAction headers
// are Namespace + "/" + operation.
const Namespace = "http://schemas.microsoft.com/sqlserver/reporting/2010/03/01/ReportServer"

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	xsiNS      = "http://www.w3.org/2001/XMLSchema-instance"
	xsdNS      = "http://www.w3.org/2001/XMLSchema"
)

// request is a SOAP envelope under construction.
type request struct {
	op   string
	doc  *etree.Document
	call *etree.Element
}

func newRequest(op string) *request {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", envelopeNS)
	env.CreateAttr("xmlns:xsi", xsiNS)
	env.CreateAttr("xmlns:xsd", xsdNS)
	body := env.CreateElement("soap:Body")
	call := body.CreateElement(op)
	call.CreateAttr("xmlns", Namespace)
	return &request{op: op, doc: doc, call: call}
}

func (r *request) text(name, value string) *etree.Element {
	return addText(r.call, name, value)
}

func (r *request) bytes() ([]byte, error) {
	return r.doc.WriteToBytes()
}

func addText(parent *etree.Element, name, value string) *etree.Element {
	e := parent.CreateElement(name)
	e.SetText(value)
	return e
}

func boolText(b bool) string {
	return strconv.FormatBool(b)
}

// writeDefinition serializes a connection definition in WSDL element order.
func writeDefinition(parent *etree.Element, def catalog.ConnectionDefinition) {
	mode := def.CredentialRetrieval
	if mode == "" {
		mode = catalog.CredentialsStore
	}
	addText(parent, "Extension", def.Extension)
	addText(parent, "ConnectString", def.ConnectString)
	addText(parent, "UseOriginalConnectString", "false")
	addText(parent, "OriginalConnectStringExpressionBased", "false")
	addText(parent, "CredentialRetrieval", string(mode))
	addText(parent, "WindowsCredentials", boolText(def.WindowsCredentials))
	addText(parent, "ImpersonateUser", "false")
	if def.UserName != "" {
		addText(parent, "UserName", def.UserName)
	}
	if def.Password != "" {
		addText(parent, "Password", def.Password)
	}
	addText(parent, "Enabled", boolText(def.Enabled))
}

func readDefinition(e *etree.Element) catalog.ConnectionDefinition {
	mode, ok := catalog.ParseCredentialRetrieval(childText(e, "CredentialRetrieval"))
	if !ok {
		mode = catalog.CredentialsNone
	}
	return catalog.ConnectionDefinition{
		Extension:           childText(e, "Extension"),
		ConnectString:       childText(e, "ConnectString"),
		CredentialRetrieval: mode,
		WindowsCredentials:  parseBool(childText(e, "WindowsCredentials")),
		UserName:            childText(e, "UserName"),
		Enabled:             parseBool(childText(e, "Enabled")),
	}
}

// writeBindings serializes bindings as DataSource elements holding a Name and
// one of DataSourceReference, DataSourceDefinition or InvalidDataSourceReference.
func writeBindings(parent *etree.Element, bindings []catalog.DataSourceBinding) {
	list := parent.CreateElement("DataSources")
	for _, b := range bindings {
		ds := list.CreateElement("DataSource")
		addText(ds, "Name", b.Name)
		switch b.Reference.Kind {
		case catalog.ReferenceShared:
			ref := ds.CreateElement("DataSourceReference")
			addText(ref, "Reference", b.Reference.Path)
		case catalog.ReferenceEmbedded:
			def := ds.CreateElement("DataSourceDefinition")
			if b.Reference.Definition != nil {
				writeDefinition(def, *b.Reference.Definition)
			}
		default:
			ds.CreateElement("InvalidDataSourceReference")
		}
	}
}

func readBindings(resp *etree.Element) []catalog.DataSourceBinding {
	var out []catalog.DataSourceBinding
	for _, ds := range resp.FindElements("./DataSources/DataSource") {
		out = append(out, catalog.DataSourceBinding{
			Name:      childText(ds, "Name"),
			Reference: readReference(ds),
		})
	}
	return out
}

// readReference picks the reference out of a DataSource element by the name
// of its choice element. A missing choice reads as invalid.
func readReference(ds *etree.Element) catalog.Reference {
	for _, c := range ds.ChildElements() {
		switch c.Tag {
		case "DataSourceReference":
			return catalog.SharedReference(childText(c, "Reference"))
		case "DataSourceDefinition":
			return catalog.EmbeddedReference(readDefinition(c))
		case "InvalidDataSourceReference":
			return catalog.InvalidReference()
		}
	}
	return catalog.InvalidReference()
}

func readItem(e *etree.Element) catalog.Item {
	if e == nil {
		return catalog.Item{}
	}
	return catalog.Item{
		ID:       childText(e, "ID"),
		Name:     childText(e, "Name"),
		Path:     childText(e, "Path"),
		TypeName: catalog.ParseItemType(childText(e, "TypeName")),
	}
}

func readItems(list *etree.Element) []catalog.Item {
	if list == nil {
		return nil
	}
	items := make([]catalog.Item, 0, len(list.ChildElements()))
	for _, e := range list.SelectElements("CatalogItem") {
		items = append(items, readItem(e))
	}
	return items
}

func readWarnings(resp *etree.Element) []catalog.Warning {
	var out []catalog.Warning
	for _, w := range resp.FindElements("./Warnings/Warning") {
		out = append(out, catalog.Warning{
			Severity:   childText(w, "Severity"),
			Code:       childText(w, "Code"),
			ObjectName: childText(w, "ObjectName"),
			ObjectType: childText(w, "ObjectType"),
			Message:    childText(w, "Message"),
		})
	}
	return out
}

func encodeContent(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}

func childText(e *etree.Element, name string) string {
	if e == nil {
		return ""
	}
	c := e.SelectElement(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

// errMalformed reports a response that is not a usable SOAP envelope.
type errMalformed struct {
	op     string
	reason string
}

func (e *errMalformed) Error() string {
	return fmt.Sprintf("malformed %s response: %s", e.op, e.reason)
}

// parseResponse returns the <op>Response element, or a *catalog.Fault when the
// envelope carries a SOAP fault.
func parseResponse(op string, data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &errMalformed{op: op, reason: err.Error()}
	}
	if fault := doc.FindElement("//Body/Fault"); fault != nil {
		return nil, parseFault(op, fault)
	}
	resp := doc.FindElement("//Body/" + op + "Response")
	if resp == nil {
		return nil, &errMalformed{op: op, reason: "missing " + op + "Response element"}
	}
	return resp, nil
}

func parseFault(op string, fault *etree.Element) *catalog.Fault {
	f := &catalog.Fault{Operation: op, Message: childText(fault, "faultstring")}
	if code := fault.FindElement(".//ErrorCode"); code != nil {
		f.Code = strings.TrimSpace(code.Text())
	}
	if msg := fault.FindElement(".//detail/Message"); msg != nil && f.Message == "" {
		f.Message = strings.TrimSpace(msg.Text())
	}
	if f.Message == "" {
		f.Message = "SOAP fault"
	}
	return f
}
