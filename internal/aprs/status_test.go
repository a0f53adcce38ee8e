package aprs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk4msl/goax25kiss/internal/aprs"
	"github.com/vk4msl/goax25kiss/internal/ax25"
)

func aprsUI(payload string) *ax25.UIFrame {
	return &ax25.UIFrame{PID: aprs.PID, Payload: []byte(payload)}
}

func TestDecodeStatusPlainText(t *testing.T) {
	f, err := aprs.Decode(aprsUI(">Net control tonight"))
	require.NoError(t, err)

	st, ok := f.(*aprs.StatusFrame)
	require.True(t, ok)
	assert.Nil(t, st.Timestamp)
	assert.Equal(t, "Net control tonight", st.Text)
}

func TestDecodeStatusWithTimestamp(t *testing.T) {
	f, err := aprs.Decode(aprsUI(">092345zOn the air"))
	require.NoError(t, err)

	st, ok := f.(*aprs.StatusFrame)
	require.True(t, ok)
	require.NotNil(t, st.Timestamp)
	assert.Equal(t, 9, st.Timestamp.Day)
	assert.Equal(t, 23, st.Timestamp.Hour)
	assert.Equal(t, 45, st.Timestamp.Min)
	assert.Equal(t, "On the air", st.Text)
}

func TestDecodeObjectUncompressed(t *testing.T) {
	f, err := aprs.Decode(aprsUI(";LEADER   *092345z4903.50N/07201.75W>088/036"))
	require.NoError(t, err)

	obj, ok := f.(*aprs.ObjectFrame)
	require.True(t, ok)
	assert.Equal(t, "LEADER", obj.Name)
	assert.True(t, obj.Live)
	assert.InDelta(t, 49.0583, obj.Position.Lat, 0.001)
	assert.InDelta(t, -72.0292, obj.Position.Lon, 0.001)
}

func TestDecodeObjectKilled(t *testing.T) {
	f, err := aprs.Decode(aprsUI(";LEADER   _092345z4903.50N/07201.75W>"))
	require.NoError(t, err)

	obj, ok := f.(*aprs.ObjectFrame)
	require.True(t, ok)
	assert.False(t, obj.Live)
}

func TestDecodeUnknownTypeReturnsOpaque(t *testing.T) {
	f, err := aprs.Decode(aprsUI("T#005,199,000,255,073,123,01101001"))
	require.NoError(t, err)

	_, ok := f.(*aprs.OpaqueFrame)
	assert.True(t, ok)
}
