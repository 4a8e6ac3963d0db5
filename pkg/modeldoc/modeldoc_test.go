package modeldoc

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModel = `<?xml version="1.0" encoding="utf-8"?>
<SemanticModel ID="M1" xmlns="http://schemas.microsoft.com/sqlserver/2004/10/semanticmodeling">
  <Culture>en-US</Culture>
  <Entities>
    <Entity ID="E1"><Name>Customer</Name></Entity>
  </Entities>
</SemanticModel>`

const sampleView = `<?xml version="1.0" encoding="utf-8"?>
<DataSourceView xmlns="http://schemas.microsoft.com/analysisservices/2003/engine">
  <ID>M1</ID>
  <Name>M1</Name>
  <DataSources>
    <DataSource>
      <ID>DB1</ID>
      <Name>DB1</Name>
      <ConnectionString>Data Source=.;Initial Catalog=Sales</ConnectionString>
    </DataSource>
  </DataSources>
</DataSourceView>`

func TestMergeModelDefinition_AppendsViewAsLastChild(t *testing.T) {
	merged, err := MergeModelDefinition([]byte(sampleModel), []byte(sampleView))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(merged))
	root := doc.Root()
	require.NotNil(t, root)
	assert.Equal(t, "SemanticModel", root.Tag)

	children := root.ChildElements()
	require.Len(t, children, 3)
	assert.Equal(t, "Culture", children[0].Tag)
	assert.Equal(t, "Entities", children[1].Tag)
	last := children[2]
	assert.Equal(t, "DataSourceView", last.Tag)
	assert.Equal(t, "http://schemas.microsoft.com/analysisservices/2003/engine", last.SelectAttrValue("xmlns", ""))
	assert.NotNil(t, last.FindElement("./DataSources/DataSource/ConnectionString"))
}

func TestMergeModelDefinition_KeepsSingleDeclaration(t *testing.T) {
	merged, err := MergeModelDefinition([]byte(sampleModel), []byte(sampleView))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(merged), "<?xml"))
	assert.True(t, strings.HasPrefix(string(merged), "<?xml"))
}

func TestMergeModelDefinition_AddsDeclarationWhenMissing(t *testing.T) {
	merged, err := MergeModelDefinition([]byte(`<SemanticModel/>`), []byte(`<DataSourceView/>`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(merged), "<?xml"), "got %s", merged)
	assert.Contains(t, string(merged), "<DataSourceView/>")
}

func TestMergeModelDefinition_DoesNotMutateInputs(t *testing.T) {
	model := []byte(sampleModel)
	view := []byte(sampleView)
	_, err := MergeModelDefinition(model, view)
	require.NoError(t, err)
	assert.Equal(t, sampleModel, string(model))
	assert.Equal(t, sampleView, string(view))
}

func TestMergeModelDefinition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		view    string
		wantErr string
	}{
		{name: "malformed model", model: "<SemanticModel>", view: sampleView, wantErr: "model definition"},
		{name: "malformed view", model: sampleModel, view: "<DataSourceView", wantErr: "data source view"},
		{name: "empty model", model: "", view: sampleView, wantErr: "model definition"},
		{name: "empty view", model: sampleModel, view: "   ", wantErr: "data source view"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MergeModelDefinition([]byte(tt.model), []byte(tt.view))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestModelDataSources(t *testing.T) {
	merged, err := MergeModelDefinition([]byte(sampleModel), []byte(sampleView))
	require.NoError(t, err)

	sources, err := ModelDataSources(merged)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "DB1", sources[0].Name)
	assert.Empty(t, sources[0].Reference)
}

func TestReportDataSources(t *testing.T) {
	rdl := `<?xml version="1.0" encoding="utf-8"?>
<Report xmlns="http://schemas.microsoft.com/sqlserver/reporting/2008/01/reportdefinition">
  <DataSources>
    <DataSource Name="M1">
      <DataSourceReference>M1</DataSourceReference>
    </DataSource>
    <DataSource Name="Local">
      <ConnectionProperties>
        <DataProvider>SQL</DataProvider>
        <ConnectString>Data Source=.</ConnectString>
      </ConnectionProperties>
    </DataSource>
  </DataSources>
  <Body/>
</Report>`

	sources, err := ReportDataSources([]byte(rdl))
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "M1", sources[0].Name)
	assert.Equal(t, "M1", sources[0].Reference)
	assert.False(t, sources[0].Embedded)

	assert.Equal(t, "Local", sources[1].Name)
	assert.True(t, sources[1].Embedded)
	assert.Equal(t, "SQL", sources[1].DataProvider)
	assert.Equal(t, "Data Source=.", sources[1].ConnectString)
}

func TestReportDataSources_MissingName(t *testing.T) {
	_, err := ReportDataSources([]byte(`<Report><DataSources><DataSource/></DataSources></Report>`))
	assert.Error(t, err)
}

func TestCheckWellFormed(t *testing.T) {
	assert.NoError(t, CheckWellFormed([]byte(sampleView)))
	assert.Error(t, CheckWellFormed([]byte("<a>")))
	assert.ErrorIs(t, CheckWellFormed([]byte("<!-- only a comment -->")), ErrNoRoot)
}
