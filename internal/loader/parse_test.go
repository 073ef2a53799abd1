package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ottoroute/internal/model"
)

func TestParseInstances(t *testing.T) {
	in := `2
50 0 5
50 100 5

1
30 40 2
0
`
	got, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []model.Waypoint{
		{Point: model.Point{X: 50, Y: 0}, Penalty: 5},
		{Point: model.Point{X: 50, Y: 100}, Penalty: 5},
	}, got[0])
	require.Equal(t, 40.0, got[1][0].Y)
}

func TestParseEmptyInstanceBetweenHeaders(t *testing.T) {
	// every header after the first closes the open instance
	got, err := Parse(strings.NewReader("0\n0\n1\n1 1 1\n0\n"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Empty(t, got[0])
	require.Empty(t, got[1])
	require.Equal(t, []model.Waypoint{{Point: model.Point{X: 1, Y: 1}, Penalty: 1}}, got[2])
}

func TestParseTrailingInstance(t *testing.T) {
	got, err := Parse(strings.NewReader("3\n1 2 3\n4 5 6"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 2)

	// an open header with nothing after it is not an instance
	got, err = Parse(strings.NewReader("3\n1 2 3\n0\n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestParseEmptyInput(t *testing.T) {
	got, err := Parse(strings.NewReader("\n  \n"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"two numbers":       "1\n1 2\n",
		"four numbers":      "1\n1 2 3 4\n",
		"word":              "1\n1 two 3\n",
		"nan":               "1\n1 NaN 3\n",
		"inf":               "1\n1 2 +Inf\n",
		"waypoint first":    "1 2 3\n0\n",
		"header is not num": "x\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(in))
			require.ErrorIs(t, err, ErrMalformed)
			require.Contains(t, err.Error(), "line ")
		})
	}
}

func TestParseMalformedLineNumber(t *testing.T) {
	_, err := Parse(strings.NewReader("1\n\n1 1 1\n1 1\n"))
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "line 4")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n1 1 1\n0\n"), 0o644))
	got, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSampleFile(t *testing.T) {
	p, err := SampleFile("", "S")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("samples", "sample_input_small.txt"), p)

	p, err = SampleFile("/data", "l")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/data", "sample_input_large.txt"), p)

	_, err = SampleFile("", "x")
	require.ErrorIs(t, err, ErrUnknownSample)
	require.Equal(t, []string{"l", "m", "s"}, SampleKeys())
}

func TestBundledSamplesParse(t *testing.T) {
	for _, k := range SampleKeys() {
		p, err := SampleFile(filepath.Join("..", "..", DefaultSamplesDir), k)
		require.NoError(t, err)
		inst, err := ParseFile(p)
		require.NoError(t, err, k)
		require.NotEmpty(t, inst, k)
	}
}
