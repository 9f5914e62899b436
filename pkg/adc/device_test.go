package adc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		raw     uint16
		device  time.Time
		wantErr bool
	}{
		{
			name:   "valid line",
			line:   "1234567890123,512",
			raw:    512,
			device: time.Unix(0, 1234567890123*1000),
		},
		{
			name:   "zero",
			line:   "0,0",
			raw:    0,
			device: time.Unix(0, 0),
		},
		{
			name:   "full scale",
			line:   "1,1023",
			raw:    1023,
			device: time.Unix(0, 1000),
		},
		{
			name:    "out of range",
			line:    "1,1024",
			wantErr: true,
		},
		{
			name:    "too few fields",
			line:    "512",
			wantErr: true,
		},
		{
			name:    "too many fields",
			line:    "1,2,3",
			wantErr: true,
		},
		{
			name:    "invalid timestamp",
			line:    "abc,512",
			wantErr: true,
		},
		{
			name:    "negative reading",
			line:    "1,-5",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			got, err := parseLine(tt.line, DefaultMaxRaw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw, got.Raw)
			assert.True(t, got.Device.Equal(tt.device))
			assert.False(t, got.Timestamp.Before(before))
		})
	}
}

func TestSerial_Consume(t *testing.T) {
	d := New("/dev/null", 0, 0)
	assert.Equal(t, uint16(DefaultMaxRaw), d.MaxRaw())

	_, ok := d.Latest()
	assert.False(t, ok)

	d.consume(strings.NewReader("1,100\n\ngarbage\n2,200\n3,9999\n"))

	got, ok := d.Latest()
	require.True(t, ok)
	assert.Equal(t, uint16(200), got.Raw)
	assert.False(t, d.IsConnected())
	assert.NoError(t, d.Close())
}

func TestSerial_ConnectMissingPort(t *testing.T) {
	d := New("/dev/does-not-exist-sensepipe", 0, 0)
	assert.Error(t, d.Connect())
	assert.False(t, d.IsConnected())
}
