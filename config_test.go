package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 115200, config.BaudRate)
	assert.Equal(t, 8, config.DataBits)
	assert.Equal(t, 1, config.StopBits)
	assert.Equal(t, ParityNone, config.Parity)
	assert.Equal(t, 100*time.Millisecond, config.ReadTimeout)
	assert.Nil(t, config.InitialRTS)
	assert.Nil(t, config.InitialDTR)
}

func TestFunctionalOptions(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, WithBaudRate(921600)(&config))
	require.NoError(t, WithDataBits(7)(&config))
	require.NoError(t, WithStopBits(2)(&config))
	require.NoError(t, WithParity(ParityEven)(&config))
	require.NoError(t, WithInitialRTS(false)(&config))
	require.NoError(t, WithInitialDTR(true)(&config))

	assert.Equal(t, 921600, config.BaudRate)
	assert.Equal(t, 7, config.DataBits)
	assert.Equal(t, 2, config.StopBits)
	assert.Equal(t, ParityEven, config.Parity)
	require.NotNil(t, config.InitialRTS)
	assert.False(t, *config.InitialRTS)
	require.NotNil(t, config.InitialDTR)
	assert.True(t, *config.InitialDTR)
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"baud", WithBaudRate(123456), ErrInvalidBaudRate},
		{"data bits high", WithDataBits(9), ErrInvalidConfig},
		{"data bits low", WithDataBits(4), ErrInvalidConfig},
		{"stop bits", WithStopBits(3), ErrInvalidConfig},
		{"negative timeout", WithReadTimeout(-time.Second), ErrInvalidConfig},
		{"timeout too long", WithReadTimeout(26 * time.Second), ErrInvalidConfig},
		{"timeout not tenths", WithReadTimeout(150 * time.Millisecond), ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			assert.ErrorIs(t, tt.opt(&config), tt.want)
			assert.Equal(t, DefaultConfig().BaudRate, config.BaudRate)
		})
	}
}

func TestReadTimeoutTenths(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    uint8
	}{
		{0, 0},
		{100 * time.Millisecond, 1},
		{2500 * time.Millisecond, 25},
		{25500 * time.Millisecond, 255},
	}

	for _, tt := range tests {
		config := DefaultConfig()
		require.NoError(t, WithReadTimeout(tt.timeout)(&config))
		assert.Equal(t, tt.want, config.readTimeoutTenths(), "timeout %v", tt.timeout)
	}
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		in   string
		want Parity
	}{
		{"", ParityNone},
		{"none", ParityNone},
		{"N", ParityNone},
		{"odd", ParityOdd},
		{"o", ParityOdd},
		{"EVEN", ParityEven},
		{"e", ParityEven},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseParity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseParity("mark")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
