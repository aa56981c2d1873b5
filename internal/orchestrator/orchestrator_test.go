package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/registry"
	"github.com/vk/flowsync/internal/testutil"
	"github.com/vk/flowsync/internal/units"
)

// Declared out of dependency order on purpose.
const schemas = `
section "blocks_Sep_data" {
  depends_on = ["blocks", "components"]
  collection "" {
    path               = "/Data/Blocks"
    var                = "block"
    base               = "/Data/Blocks/{block}/Input"
    filter_record_type = ["Sep"]
    create             = "record"
    create_type        = "Sep"
    collection "SPEC_DATA" {
      path = "~/FRACS"
      var  = "flow"
      collection "" {
        path      = "~/FRACS/{flow}/MIXED"
        var       = "comp"
        shape     = "list"
        key_field = "COMP_ID"
        reference = "components"
        field "FRACS" { path = "." }
      }
    }
  }
}

section "components" {
  collection "" {
    path      = "/Data/Components/Specifications/Input/TYPE"
    var       = "cid"
    shape     = "list"
    key_field = "CID"
    provides  = "components"
    field "TYPE" { path = "." }
  }
}

section "blocks" {
  collection "" {
    path            = "/Data/Blocks"
    var             = "block"
    create          = "record"
    create_type_key = "type"
    field "type" {
      path   = "."
      source = "record_type"
    }
  }
}

section "blocks_Heater_data" {
  depends_on = ["blocks"]
  collection "" {
    path               = "/Data/Blocks"
    var                = "block"
    base               = "/Data/Blocks/{block}/Input"
    filter_record_type = ["Heater"]
    create             = "record"
    create_type        = "Heater"
    object "SPEC_DATA" {
      field "TEMP_VALUE" { units = "TEMP_UNITS" }
      field "PRES_VALUE" { units = "PRES_UNITS" }
    }
  }
}

section "results" {
  results = true
  field "STATUS" { path = "/Results/STATUS" }
}
`

const fixture = `
Data:
  Components:
    Specifications:
      Input:
        TYPE:
          WATER: CONVENTIONAL
          CO2: CONVENTIONAL
  Blocks:
    H1:
      "@type": Heater
      Input:
        TEMP: {"@value": 350, "@unit": C}
    H2:
      "@type": Heater
      Input:
        TEMP: {"@value": 20, "@unit": C}
        PRES: {"@value": 2, "@unit": bar}
    SP1:
      "@type": Sep
      Input:
        FRACS:
          S2:
            MIXED:
              WATER: 0.9
              GHOST: 0.5
              CO2: 0.1
Results:
  STATUS: OK
`

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	ctx, _ := testutil.Context(t)
	reg := registry.New()
	reg.PopulateFromModel(&config.Model{Sections: testutil.Sections(t, schemas)})
	require.NoError(t, reg.ValidateRegistry(ctx))
	n := 0
	return New(reg, units.Default(), WithIDGenerator(func() string {
		n++
		return "run-" + strconv.Itoa(n)
	}))
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestExtractAll(t *testing.T) {
	ctx, _ := testutil.Context(t)
	o := newOrchestrator(t)

	doc, report, err := o.ExtractAll(ctx, testutil.Store(t, fixture))
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, "run-1", report.ID)
	assert.Equal(t, []string{"components", "blocks", "blocks_Sep_data", "blocks_Heater_data"}, doc.Keys())

	assert.JSONEq(t, `{
		"components": [{"CID": "WATER", "TYPE": "CONVENTIONAL"}, {"CID": "CO2", "TYPE": "CONVENTIONAL"}],
		"blocks": {"H1": {"type": "Heater"}, "H2": {"type": "Heater"}, "SP1": {"type": "Sep"}},
		"blocks_Sep_data": {"SP1": {"SPEC_DATA": {"S2": [{"COMP_ID": "WATER", "FRACS": 0.9}, {"COMP_ID": "CO2", "FRACS": 0.1}]}}},
		"blocks_Heater_data": {
			"H1": {"SPEC_DATA": {"TEMP_VALUE": 350, "TEMP_UNITS": "C"}},
			"H2": {"SPEC_DATA": {"TEMP_VALUE": 20, "TEMP_UNITS": "C", "PRES_VALUE": 2, "PRES_UNITS": "bar"}}
		}
	}`, toJSON(t, doc))

	results := report.Section("results")
	require.NotNil(t, results)
	assert.Equal(t, StatusSkipped, results.Status)
	assert.Equal(t, 3, report.Section("blocks").Instances)
}

func TestExtractAll_WithResults(t *testing.T) {
	ctx, _ := testutil.Context(t)
	doc, _, err := newOrchestrator(t).ExtractAll(ctx, testutil.Store(t, fixture), WithResults())
	require.NoError(t, err)
	v, ok := doc.Get("results")
	require.True(t, ok)
	assert.JSONEq(t, `{"STATUS": "OK"}`, toJSON(t, v))
}

func TestExtractAll_PartialFailure(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := testutil.NewFaultyStore(testutil.Store(t, fixture))
	store.FailOn(`H2\Input\PRES`, errors.New("engine hiccup"))

	doc, report, err := newOrchestrator(t).ExtractAll(ctx, store)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"blocks_Heater_data"}, report.Failed())

	heater := report.Section("blocks_Heater_data")
	assert.Equal(t, 2, heater.Instances)
	assert.Equal(t, 1, heater.FailedInstances)
	require.Len(t, heater.Errors, 1)
	assert.Contains(t, heater.Errors[0], "instance 'H2'")

	v, _ := doc.Get("blocks_Heater_data")
	assert.JSONEq(t, `{"H1": {"SPEC_DATA": {"TEMP_VALUE": 350, "TEMP_UNITS": "C"}}, "H2": {}}`, toJSON(t, v))
	assert.Equal(t, StatusOK, report.Section("blocks_Sep_data").Status, "other sections are unaffected")
}

func TestExtractAll_ConnectionLost(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := testutil.NewFaultyStore(testutil.Store(t, fixture))
	store.FailOn(`\Data\Blocks`, attrstore.ErrConnectionLost)

	doc, report, err := newOrchestrator(t).ExtractAll(ctx, store)
	require.ErrorIs(t, err, attrstore.ErrConnectionLost)
	assert.Nil(t, doc)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.RunError)
	assert.False(t, report.OK())
}

func TestExtractAll_Only(t *testing.T) {
	ctx, _ := testutil.Context(t)
	o := newOrchestrator(t)

	doc, report, err := o.ExtractAll(ctx, testutil.Store(t, fixture), WithOnly("blocks_Sep_data"))
	require.NoError(t, err)
	assert.Equal(t, []string{"blocks_Sep_data"}, doc.Keys())
	assert.NotContains(t, toJSON(t, doc), "GHOST", "the components key set is still read")
	assert.Equal(t, StatusSkipped, report.Section("components").Status)

	_, _, err = o.ExtractAll(ctx, testutil.Store(t, fixture), WithOnly("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section 'nope'")
}

func TestWriteAll_RoundTrip(t *testing.T) {
	ctx, _ := testutil.Context(t)
	o := newOrchestrator(t)

	want, _, err := o.ExtractAll(ctx, testutil.Store(t, fixture))
	require.NoError(t, err)

	target := testutil.Store(t, "")
	report, err := o.WriteAll(ctx, target, want)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Sections)
	assert.Equal(t, StatusSkipped, report.Section("results").Status)

	got, _, err := o.ExtractAll(ctx, target)
	require.NoError(t, err)
	assert.True(t, document.Equal(want, got), document.Diff(want, got))

	before := testutil.Dump(t, target, "")
	_, err = o.WriteAll(ctx, target, want)
	require.NoError(t, err)
	assert.Equal(t, before, testutil.Dump(t, target, ""), "writing twice changes nothing")
}

func TestWriteAll_PartialFailureAndRetry(t *testing.T) {
	ctx, _ := testutil.Context(t)
	o := newOrchestrator(t)
	doc, err := document.Parse([]byte(`{
		"components": [{"CID": "WATER", "TYPE": "CONVENTIONAL"}],
		"blocks": {"H1": {"type": "Heater"}, "SP1": {"type": "Sep"}},
		"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 1, "TEMP_UNITS": "parsecs"}}},
		"blocks_Sep_data": {"SP1": {"SPEC_DATA": {"S2": [{"COMP_ID": "WATER", "FRACS": 1}, {"COMP_ID": "GHOST", "FRACS": 0}]}}},
		"mystery": {}
	}`))
	require.NoError(t, err)

	store := testutil.Store(t, "")
	report, err := o.WriteAll(ctx, store, doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"blocks_Heater_data"}, report.Failed())
	assert.Equal(t, StatusOK, report.Section("blocks_Sep_data").Status)
	assert.Equal(t, StatusSkipped, report.Section("results").Status)

	n, err := store.FindNode(ctx, `\Data\Blocks\SP1\Input\FRACS\S2\MIXED\GHOST`)
	require.NoError(t, err)
	assert.Nil(t, n, "entries outside the written component set are skipped")

	fixed, err := document.Parse([]byte(`{
		"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 1, "TEMP_UNITS": "K"}}},
		"blocks_Sep_data": {"SP1": {"SPEC_DATA": {"S2": [{"COMP_ID": "GHOST", "FRACS": 0}]}}}
	}`))
	require.NoError(t, err)
	retry, err := o.WriteAll(ctx, store, fixed, WithOnly(report.Failed()...))
	require.NoError(t, err)
	assert.True(t, retry.OK())
	assert.Equal(t, StatusSkipped, retry.Section("blocks_Sep_data").Status)

	temp, err := store.FindNode(ctx, `\Data\Blocks\H1\Input\TEMP`)
	require.NoError(t, err)
	require.NotNil(t, temp)
	assert.Equal(t, "K", temp.UnitString())
}

type runnerStore struct {
	attrstore.Store
	runs atomic.Int32
	err  error
}

func (r *runnerStore) Run(ctx context.Context) error {
	r.runs.Add(1)
	return r.err
}

func TestWriteAll_WithRun(t *testing.T) {
	ctx, _ := testutil.Context(t)
	o := newOrchestrator(t)
	doc := document.New()

	store := &runnerStore{Store: testutil.Store(t, "")}
	report, err := o.WriteAll(ctx, store, doc, WithRun())
	require.NoError(t, err)
	assert.True(t, report.Ran)
	assert.Equal(t, int32(1), store.runs.Load())

	report, err = o.WriteAll(ctx, store, doc)
	require.NoError(t, err)
	assert.False(t, report.Ran)

	store.err = errors.New("solver diverged")
	report, err = o.WriteAll(ctx, store, doc, WithRun())
	require.Error(t, err)
	assert.Contains(t, report.RunError, "solver diverged")

	report, err = o.WriteAll(ctx, testutil.Store(t, ""), doc, WithRun())
	require.NoError(t, err)
	assert.False(t, report.Ran, "plain stores cannot run")
}

func TestWriteAll_ConnectionLost(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := testutil.NewFaultyStore(testutil.Store(t, ""))
	store.LoseAfter = 3
	doc, err := document.Parse([]byte(`{"blocks": {"H1": {"type": "Heater"}, "H2": {"type": "Heater"}, "H3": {"type": "Heater"}},
		"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 1}}}}`))
	require.NoError(t, err)

	report, err := newOrchestrator(t).WriteAll(ctx, store, doc)
	require.ErrorIs(t, err, attrstore.ErrConnectionLost)
	assert.False(t, report.OK())
	assert.Nil(t, report.Section("blocks_Heater_data"), "the run stops at the lost connection")
}
