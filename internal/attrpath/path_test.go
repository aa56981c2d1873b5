package attrpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndJoin(t *testing.T) {
	assert.Equal(t, `\Data\Blocks\B1`, Build("Data", "Blocks", "B1"))
	assert.Equal(t, "", Build())
	assert.Equal(t, `\Data\Blocks\B1\Input`, Join(`\Data\Blocks`, "B1", "Input"))
	assert.Equal(t, `\Data`, Join("", "Data"))
	assert.Equal(t, `\Data`, Join(`\Data`))
	assert.Equal(t, `\Data\Streams`, Join(`\Data\`, "Streams"))
}

func TestSplit(t *testing.T) {
	assert.Nil(t, Split(""))
	assert.Nil(t, Split(`\`))
	assert.Equal(t, []string{"Data", "Results Summary", "Run-Status"}, Split(`\Data\Results Summary\Run-Status`))
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		expected  []string
	}{
		{name: "simple path", raw: `\Data\Streams\S1`, expected: []string{"Data", "Streams", "S1"}},
		{name: "segments with spaces and colons", raw: `\Data\Blocks\C1\Input\D:F`, expected: []string{"Data", "Blocks", "C1", "Input", "D:F"}},
		{name: "error - empty string", raw: "", expectErr: true},
		{name: "error - not rooted", raw: `Data\Streams`, expectErr: true},
		{name: "error - empty segment", raw: `\Data\\Streams`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.raw)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, p.Segments)
		})
	}
}

func TestPath_RoundTrip(t *testing.T) {
	for _, raw := range []string{`\Data`, `\Data\Blocks\B1\Input\TEMP`, `\Data\Flowsheeting Options\Design-Spec\DS-1`} {
		t.Run(raw, func(t *testing.T) {
			p, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, p.String())

			again, err := Parse(p.String())
			require.NoError(t, err)
			assert.True(t, p.Equal(again))
		})
	}
}

func TestPath_Navigation(t *testing.T) {
	p, err := Parse(`\Data\Blocks\B1`)
	require.NoError(t, err)

	assert.Equal(t, "B1", p.Name())
	assert.Equal(t, `\Data\Blocks`, p.Parent().String())
	assert.Equal(t, `\Data\Blocks\B1\Input`, p.Child("Input").String())
	assert.Equal(t, `\Data\Blocks\B1`, p.String(), "Child must not alias the receiver")
	assert.True(t, Path{}.IsRoot())
	assert.True(t, Path{}.Parent().IsRoot())
}
