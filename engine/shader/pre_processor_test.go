package shader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreProcessorInclude(t *testing.T) {
	pp := NewPreProcessor()
	out, err := pp.Process("//@fx:include color_utils\nfn main() {}")
	require.NoError(t, err)

	assert.Contains(t, out, "fn rgb_to_hsl(")
	assert.True(t, strings.HasSuffix(out, "\nfn main() {}"))
	assert.NotContains(t, out, "@fx:")

	included := pp.Included()
	require.Len(t, included, 1)
	assert.Equal(t, AnnotationTypeInclude, included[0].Type)
	assert.Equal(t, AnnotationArgColorUtils, included[0].Args[0])
	assert.Equal(t, 1, included[0].Line)
}

func TestPreProcessorIncludesOnce(t *testing.T) {
	pp := NewPreProcessor()
	out, err := pp.Process("//@fx:include quad_varying\n//@fx:include quad_varying\n")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, "struct QuadVarying"))
	assert.Len(t, pp.Included(), 1)
}

func TestPreProcessorLeavesPlainSource(t *testing.T) {
	src := "// regular comment\nfn main() {}\n"
	out, err := NewPreProcessor().Process(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestPreProcessorErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"empty", "fn a() {}\n//@fx:", "line 2: empty @fx directive"},
		{"unknown snippet", "//@fx:include camera", `unknown snippet "camera"`},
		{"missing argument", "//@fx:include", "requires exactly one argument"},
		{"unknown directive", "//@fx:group 0 0", `unknown @fx directive "group"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPreProcessor().Process(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
