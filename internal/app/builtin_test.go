package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/testutil"
)

func storeNode(t *testing.T, a *App, path string) attrstore.Node {
	t.Helper()
	n, err := a.store.FindNode(context.Background(), path)
	require.NoError(t, err)
	return n
}

func storeValue(t *testing.T, a *App, path string) any {
	t.Helper()
	n := storeNode(t, a, path)
	require.NotNil(t, n, "missing node %s", path)
	return n.Value()
}

func TestBuiltinSchemas_ExtractPlant(t *testing.T) {
	a, _ := newTestAppWithFixture(t, testutil.Plant, nil)
	data := extractJSON(t, a)

	testCases := []struct {
		path string
		want string
	}{
		{
			path: "components",
			want: `[
				{"cid": "WATER", "name": "WATER", "cas_number": "7732-18-5", "database_name": "WATER"},
				{"cid": "ETHYLENE", "name": "C2H4", "database_name": "C2H4"},
				{"cid": "ETHANOL", "name": "C2H6O-2", "database_name": "C2H6O-2"}
			]`,
		},
		{
			path: "property_methods",
			want: `[{"method_name": "NRTL", "is_basis_method": true}, {"method_name": "PENG-ROB", "is_basis_method": false}]`,
		},
		{path: "block_connections", want: `{"C1": {"S1": "F(IN)", "D1": "VD(OUT)", "B1": "B(OUT)"}}`},
		{path: "reactions.R1.type", want: `"POWERLAW"`},
		{path: "reactions.R1.REAC_DATA.0.COEF_DATA", want: `{"WATER": -1, "ETHYLENE": -1}`},
		{path: "reactions.R1.REAC_DATA.0.COEF1_DATA", want: `{"ETHANOL": 1}`},
		{path: "reactions.R1.REAC_DATA.0.PRE_EXP", want: `1000`},
		{path: "stream_data.S1.pressure", want: `{"PRES_VALUE": 1, "PRES_UNITS": "bar"}`},
		{path: "stream_data.S1.temperature", want: `{"TEMP_VALUE": 25, "TEMP_UNITS": "C"}`},
		{path: "stream_data.S1.flow.WATER", want: `{"FLOW_VALUE": 10, "FLOW_UNITS": "kmol/hr"}`},
		{path: "stream_data.S2.temperature", want: `{"TEMP_VALUE": 80, "TEMP_UNITS": "C"}`},
		{path: "stream_data.S2.vfrac", want: `{"VFRAC_VALUE": 1}`},
		{path: "stream_data.S3.pressure", want: `{"PRES_VALUE": 2, "PRES_UNITS": "bar"}`},
		{path: "stream_data.S3.vfrac", want: `{"VFRAC_VALUE": 0}`},
		{path: "convergence.conv_options", want: `{"tol": 0.0001, "tear_method": "BROYDEN", "weg_maxit": 50, "br_maxit": 40}`},
		{path: "blocks", want: `[{"name": "C1", "type": "RadFrac"}]`},
		{path: "blocks_RadFrac_data.C1.CONFIG_DATA", want: `{"NSTAGE": 10, "CONDENSER": "TOTAL", "REBOILER": "KETTLE"}`},
		{path: "blocks_RadFrac_data.C1.OP_SPEC", want: `[{"RR": 1.5}, {"D_F": 0.5}]`},
		{path: "blocks_RadFrac_data.C1.FEEDS", want: `{"S1": {"STAGE": 5}}`},
		{path: "blocks_RadFrac_data.C1.PRODUCTS", want: `{"D1": {"STAGE": 1}, "B1": {"STAGE": 10}}`},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			got := gjson.GetBytes(data, tc.path)
			require.True(t, got.Exists(), "missing %s in %s", tc.path, data)
			assert.JSONEq(t, tc.want, got.Raw)
		})
	}

	for _, absent := range []string{
		"stream_data.S1.vfrac",
		"stream_data.S2.pressure",
		"stream_data.S3.temperature",
		"reactions.R1.REAC_DATA.0.COEF_DATA.MYCOMP",
	} {
		assert.False(t, gjson.GetBytes(data, absent).Exists(), "%s should be absent", absent)
	}
}

func TestBuiltinSchemas_WritePlantIntoEmptyStore(t *testing.T) {
	src, _ := newTestAppWithFixture(t, testutil.Plant, nil)
	want := extractJSON(t, src)
	doc, err := document.Parse(want)
	require.NoError(t, err)

	dst, _ := newTestAppWithFixture(t, "", nil)
	report, err := dst.Write(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, report.OK(), "failed sections: %v", report.Failed())

	assert.NotNil(t, storeNode(t, dst, `\Data\Blocks\C1\Ports\F(IN)\S1`))
	assert.NotNil(t, storeNode(t, dst, `\Data\Blocks\C1\Ports\VD(OUT)\D1`))
	assert.NotNil(t, storeNode(t, dst, `\Data\Blocks\C1\Ports\B(OUT)\B1`))
	assert.Equal(t, "RadFrac", storeNode(t, dst, `\Data\Blocks\C1`).RecordType())

	coef := `\Data\Reactions\Reactions\R1\Input\COEF\1`
	assert.Equal(t, float64(-1), storeValue(t, dst, coef+`\WATER\MIXED`))
	assert.Equal(t, float64(-1), storeValue(t, dst, coef+`\ETHYLENE\MIXED`))
	assert.Nil(t, storeNode(t, dst, coef+`\WATER MIXED`))
	assert.Nil(t, storeNode(t, dst, coef+`\MYCOMP`))
	assert.Equal(t, float64(1), storeValue(t, dst, `\Data\Reactions\Reactions\R1\Input\COEF1\1\ETHANOL\MIXED`))
	assert.Equal(t, "POWERLAW", storeNode(t, dst, `\Data\Reactions\Reactions\R1`).RecordType())

	props := `\Data\Properties\Specifications\Input`
	assert.Equal(t, "NRTL", storeValue(t, dst, props+`\GBASEOPSET`))
	assert.Equal(t, "NRTL", storeValue(t, dst, props+`\GOPSETNAME`))
	assert.Equal(t, "ALL", storeValue(t, dst, props+`\GPPROCTYPE`))

	assert.Nil(t, storeNode(t, dst, `\Data\Components\Specifications\Input\ANAME\MYCOMP`))
	assert.Equal(t, "C2H4", storeValue(t, dst, `\Data\Components\Specifications\Input\DBNAME\ETHYLENE`))

	temp := storeNode(t, dst, `\Data\Streams\S1\Input\TEMP\MIXED`)
	require.NotNil(t, temp)
	assert.Equal(t, float64(25), temp.Value())
	assert.Equal(t, "C", temp.UnitString())
	assert.Equal(t, "TV", storeValue(t, dst, `\Data\Streams\S2\Input\MIXED_SPEC\MIXED`))
	assert.Nil(t, storeNode(t, dst, `\Data\Streams\S2\Input\PRES`))
	assert.Equal(t, float64(0), storeValue(t, dst, `\Data\Streams\S3\Input\VFRAC\MIXED`))

	assert.Equal(t, float64(40), storeValue(t, dst, `\Data\Convergence\Conv-Options\Input\BR_MAXIT`))
	assert.Equal(t, 0.5, storeValue(t, dst, `\Data\Blocks\C1\Input\D:F`))
	assert.Equal(t, float64(5), storeValue(t, dst, `\Data\Blocks\C1\Input\FEED_STAGE\S1`))

	assert.JSONEq(t, string(want), string(extractJSON(t, dst)))
}

func TestBuiltinSchemas_ComponentsNeedDatabankName(t *testing.T) {
	a, _ := newTestAppWithFixture(t, "", nil)
	doc, err := document.Parse([]byte(`{"components": [
		{"cid": "MYCOMP", "name": "MYCOMP"},
		{"cid": "WATER", "name": "WATER", "database_name": "WATER"}
	]}`))
	require.NoError(t, err)

	report, err := a.Write(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, report.OK(), "failed sections: %v", report.Failed())

	aname := `\Data\Components\Specifications\Input\ANAME`
	assert.Nil(t, storeNode(t, a, aname+`\MYCOMP`))
	assert.Equal(t, "WATER", storeValue(t, a, aname+`\WATER`))

	cid := gjson.GetBytes(extractJSON(t, a), "components.#.cid")
	assert.JSONEq(t, `["WATER"]`, cid.Raw)
}

func TestBuiltinSchemas_BlockConnections(t *testing.T) {
	testCases := []struct {
		name    string
		fixture string
	}{
		{
			name: "connection view",
			fixture: `
Data:
  Blocks:
    B1:
      "@type": Flash2
      Connections:
        S1: F(IN)
        S2: P(OUT)
  Streams:
    S1: {"@type": MATERIAL}
    S2: {"@type": MATERIAL}
`,
		},
		{
			name: "ports only",
			fixture: `
Data:
  Blocks:
    B1:
      "@type": Flash2
      Ports:
        F(IN):
          S1: ""
        P(OUT):
          S2: ""
  Streams:
    S1: {"@type": MATERIAL}
    S2: {"@type": MATERIAL}
`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newTestAppWithFixture(t, tc.fixture, nil)
			got := gjson.GetBytes(extractJSON(t, a), "block_connections")
			assert.JSONEq(t, `{"B1": {"S1": "F(IN)", "S2": "P(OUT)"}}`, got.Raw)
		})
	}

	t.Run("write goes through ports", func(t *testing.T) {
		a, _ := newTestAppWithFixture(t, "", nil)
		doc, err := document.Parse([]byte(`{
			"blocks": [{"name": "B1", "type": "Flash2"}],
			"streams": ["S1", "S2"],
			"block_connections": {"B1": {"S1": "F(IN)", "S2": "P(OUT)"}}
		}`))
		require.NoError(t, err)
		report, err := a.Write(context.Background(), doc)
		require.NoError(t, err)
		require.True(t, report.OK(), "failed sections: %v", report.Failed())

		assert.NotNil(t, storeNode(t, a, `\Data\Blocks\B1\Ports\F(IN)\S1`))
		assert.NotNil(t, storeNode(t, a, `\Data\Blocks\B1\Ports\P(OUT)\S2`))
		assert.Nil(t, storeNode(t, a, `\Data\Blocks\B1\Connections`))
	})
}

func TestBuiltinSchemas_BasisPropertyMethod(t *testing.T) {
	a, _ := newTestAppWithFixture(t, "", nil)
	doc, err := document.Parse([]byte(`{"property_methods": [
		{"method_name": "PENG-ROB", "is_basis_method": false},
		{"method_name": "NRTL", "is_basis_method": true}
	]}`))
	require.NoError(t, err)
	report, err := a.Write(context.Background(), doc)
	require.NoError(t, err)
	require.True(t, report.OK(), "failed sections: %v", report.Failed())

	props := `\Data\Properties\Specifications\Input`
	assert.Equal(t, "NRTL", storeValue(t, a, props+`\GBASEOPSET`))
	assert.Equal(t, "NRTL", storeValue(t, a, props+`\GOPSETNAME`))
	assert.Equal(t, "ALL", storeValue(t, a, props+`\GPPROCTYPE`))
	assert.NotNil(t, storeNode(t, a, `\Data\Properties\Property Methods\PENG-ROB`))
}
