package components

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "48656C6C6F", want: []byte("Hello")},
		{in: "48 65 6c 6c 6f", want: []byte("Hello")},
		{in: "0x01 0x02", want: []byte{0x01, 0x02}},
		{in: "ABC", wantErr: true},
		{in: "zz", wantErr: true},
		{in: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInputPayload(t *testing.T) {
	in := NewInput()

	_, err := in.Payload()
	assert.ErrorIs(t, err, ErrEmptyInput)

	in.SetValue("AT+GMR")
	got, err := in.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte("AT+GMR\r\n"), got)

	in.ToggleSendingMode()
	assert.Equal(t, SendingModeHex, in.GetSendingMode())
	in.SetValue("0206")
	got, err = in.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x06}, got)
}

func TestInputHistory(t *testing.T) {
	in := NewInput()
	in.AddToHistory("one")
	in.AddToHistory("two")
	in.AddToHistory("two")
	in.AddToHistory("  ")

	in.SetValue("draft")
	in.NavigateHistoryUp()
	assert.Equal(t, "two", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "one", in.Value())
	in.NavigateHistoryUp()
	assert.Equal(t, "one", in.Value())

	in.NavigateHistoryDown()
	assert.Equal(t, "two", in.Value())
	in.NavigateHistoryDown()
	assert.Equal(t, "draft", in.Value())
}
