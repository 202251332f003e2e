package pv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsInt64(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{"int", 42, 42},
		{"uint32", uint32(0x9010001), 0x9010001},
		{"float64 from json", float64(1000), 1000},
		{"hex string", "0x10", 16},
		{"single element array", []any{float64(7)}, 7},
		{"single element word array", []uint32{3}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AsInt64(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsInt64_Unsupported(t *testing.T) {
	_, err := AsInt64([]string{"a", "b"})
	assert.Error(t, err)

	_, err = AsInt64("not a number")
	assert.Error(t, err)
}

func TestAsUint32s(t *testing.T) {
	got, err := AsUint32s([]any{float64(1), float64(0xFFFFFFFF)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 0xFFFFFFFF}, got)

	got, err = AsUint32s([]int32{-1, 2})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0xFFFFFFFF, 2}, got)

	got, err = AsUint32s(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAsStrings(t *testing.T) {
	got, err := AsStrings([]any{"IDLE", "TASK"})
	require.NoError(t, err)
	assert.Equal(t, []string{"IDLE", "TASK"}, got)

	_, err = AsStrings([]any{"ok", float64(1)})
	assert.Error(t, err)
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "IOC:rtems:stats:export.VALA", ExportChannel("IOC:rtems:stats", "VALA"))
	assert.Equal(t, "IOC:rtems:stats:control.PROC", ControlChannel("IOC:rtems:stats", "PROC"))
}

func TestStamp(t *testing.T) {
	s := Stamp{Sec: 12, Nsec: 5}
	assert.Equal(t, "12.000000005", s.String())
	assert.False(t, s.IsZero())
	assert.True(t, Stamp{}.IsZero())
}
