package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sensepipe/pkg/param"
)

func testDoc() param.Document {
	return param.Document{Nodes: []param.NodeDoc{
		{Path: "/steering/rudderAngle", Params: []param.ParamDoc{
			{Key: "read_delay", Label: "Read delay (ms)", Value: 500},
		}},
		{Path: "/Transforms/Angle Transform", Params: []param.ParamDoc{
			{Key: "offset", Label: "Offset", Value: 0},
			{Key: "stb_angle_value", Label: "Starboard value", Value: 3.3},
		}},
	}}
}

func TestApplyEntries(t *testing.T) {
	doc := testDoc()

	got, err := applyEntries(doc, "/Transforms/Angle Transform", map[string]string{
		"offset":          " 2.5 ",
		"stb_angle_value": "3.1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2.5, got.Nodes[1].Params[0].Value)
	assert.Equal(t, 3.1, got.Nodes[1].Params[1].Value)
	assert.Equal(t, 500.0, got.Nodes[0].Params[0].Value)

	// The input document is untouched.
	assert.Equal(t, 0.0, doc.Nodes[1].Params[0].Value)
}

func TestApplyEntries_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		texts map[string]string
	}{
		{"not a number", "/steering/rudderAngle", map[string]string{"read_delay": "fast"}},
		{"nan", "/steering/rudderAngle", map[string]string{"read_delay": "NaN"}},
		{"infinite", "/steering/rudderAngle", map[string]string{"read_delay": "+Inf"}},
		{"unknown node", "/nope", map[string]string{"read_delay": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDoc()
			got, err := applyEntries(doc, tt.path, tt.texts)
			assert.Error(t, err)
			assert.Equal(t, doc, got)
		})
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Offset", labelFor(param.ParamDoc{Key: "offset", Label: "Offset"}))
	assert.Equal(t, "offset", labelFor(param.ParamDoc{Key: "offset"}))
	assert.Equal(t, "Transforms/Angle Transform", tabTitle("/Transforms/Angle Transform"))
	assert.Equal(t, "/", tabTitle("/"))
	assert.Equal(t, "3.3", formatValue(3.3))
}
