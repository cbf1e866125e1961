package bert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/uptake/uptake"
)

func TestParseDevice(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", uptake.DeviceAuto},
		{"auto", uptake.DeviceAuto},
		{" CPU ", uptake.DeviceCPU},
		{"cuda", uptake.DeviceCUDA},
	}
	for _, c := range cases {
		got, err := ParseDevice(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}

	_, err := ParseDevice("tpu")
	assert.Error(t, err)
}

func TestSelectInputs(t *testing.T) {
	names, err := selectInputs([]ort.InputOutputInfo{
		{Name: InputIDs},
		{Name: TokenTypeIDs},
		{Name: AttentionMask},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{InputIDs, TokenTypeIDs, AttentionMask}, names)

	names, err = selectInputs([]ort.InputOutputInfo{{Name: InputIDs}, {Name: AttentionMask}})
	require.NoError(t, err)
	assert.Equal(t, []string{InputIDs, AttentionMask}, names)

	_, err = selectInputs([]ort.InputOutputInfo{{Name: InputIDs}})
	assert.ErrorContains(t, err, AttentionMask)

	_, err = selectInputs([]ort.InputOutputInfo{{Name: InputIDs}, {Name: AttentionMask}, {Name: "pixel_values"}})
	assert.ErrorContains(t, err, "pixel_values")
}

func TestClosedSession(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Close())

	s = &Session{}
	_, err := s.Predict(t.Context(), uptake.Encoding{}, uptake.DefaultHead)
	assert.Error(t, err)
}
