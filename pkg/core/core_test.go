package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeYear(t *testing.T) {
	tt := []struct {
		in, want string
	}{
		{"", DefaultYear},
		{"   ", DefaultYear},
		{"2019", "2019"},
		{" 2020 ", "2020"},
		{"not-a-year", "not-a-year"},
	}

	for _, tc := range tt {
		assert.Equal(t, tc.want, NormalizeYear(tc.in), "input %q", tc.in)
	}
}

func TestPayload_Series(t *testing.T) {
	p := Payload{
		WorldMap:       "<svg>A</svg>",
		WorldMap2:      "<svg>B</svg>",
		WorldMap3:      "<svg>C</svg>",
		NDVICategories: []string{"2021-01", "2021-02"},
		NDVIValues:     []float64{0.1, 0.2},
		LSTCategories:  []string{"2021-01"},
		LSTValues:      []float64{301.5},
	}

	require.Equal(t, [3]string{"<svg>A</svg>", "<svg>B</svg>", "<svg>C</svg>"}, p.Maps())
	require.Equal(t, 2, p.NDVI().Length())
	require.True(t, p.NDVI().Aligned())
	require.Equal(t, []float64{301.5}, p.LST().Values)

	misaligned := Series{Categories: []string{"a"}, Values: []float64{1, 2}}
	require.False(t, misaligned.Aligned())
}

func TestPayload_JSONKeys(t *testing.T) {
	raw := `{"world_map":"m1","world_map2":"m2","world_map3":"m3",
		"graph1AXA":["a"],"graph1AYA":[0.5],"graph1AX":["b"],"graph1AY":[300]}`

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.Equal(t, "m3", p.WorldMap3)
	require.Equal(t, []string{"a"}, p.NDVICategories)
	require.Equal(t, []float64{300}, p.LSTValues)
}

func TestBounds(t *testing.T) {
	lo, hi, ok := Bounds([]float64{0.3, -1, 2.5, 0})
	require.True(t, ok)
	require.Equal(t, -1.0, lo)
	require.Equal(t, 2.5, hi)

	_, _, ok = Bounds([]int{})
	require.False(t, ok)
}

func TestGradientStop_MarshalJSON(t *testing.T) {
	content, err := json.Marshal(GradientStop{Offset: 1, Color: "rgba(124,181,236,0)"})
	require.NoError(t, err)
	require.JSONEq(t, `[1,"rgba(124,181,236,0)"]`, string(content))

	var stop GradientStop
	require.NoError(t, json.Unmarshal(content, &stop))
	require.Equal(t, GradientStop{Offset: 1, Color: "rgba(124,181,236,0)"}, stop)

	require.Error(t, json.Unmarshal([]byte(`[1]`), &stop))
}

func TestMalformedPayloadError(t *testing.T) {
	var err error = &MalformedPayloadError{Field: "graph1AYA", Reason: "is missing"}
	require.True(t, errors.Is(err, ErrMalformedPayload))
	require.Contains(t, err.Error(), `"graph1AYA"`)

	var target *MalformedPayloadError
	require.True(t, errors.As(err, &target))
	require.Equal(t, "graph1AYA", target.Field)

	err = &MalformedPayloadError{Reason: "body is not JSON"}
	require.Equal(t, "malformed payload: body is not JSON", err.Error())
}
