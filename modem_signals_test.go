package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestDecodeModemStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ModemSignals
	}{
		{"none", 0, ModemSignals{}},
		{"CTS", unix.TIOCM_CTS, ModemSignals{CTS: true}},
		{"DSR", unix.TIOCM_DSR, ModemSignals{DSR: true}},
		{"RI", unix.TIOCM_RI, ModemSignals{RI: true}},
		{"carrier", unix.TIOCM_CAR, ModemSignals{DCD: true}},
		{"outputs", unix.TIOCM_RTS | unix.TIOCM_DTR, ModemSignals{RTS: true, DTR: true}},
		{
			"all",
			unix.TIOCM_CTS | unix.TIOCM_DSR | unix.TIOCM_RI | unix.TIOCM_CAR | unix.TIOCM_RTS | unix.TIOCM_DTR,
			ModemSignals{CTS: true, DSR: true, RI: true, DCD: true, RTS: true, DTR: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeModemStatus(tt.status))
		})
	}
}

func TestSignalsOnClosedPort(t *testing.T) {
	p := &port{closed: true}

	assert.ErrorIs(t, p.SetRTS(true), ErrPortClosed)
	assert.ErrorIs(t, p.SetDTR(true), ErrPortClosed)
	assert.ErrorIs(t, p.SetSignals(false, true), ErrPortClosed)

	_, err := p.GetModemSignals()
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestSignalsOnNonTTY(t *testing.T) {
	// a pipe has no modem lines, so the ioctl must fail rather than pretend
	p, _ := newPipePort(t)
	defer p.Close()

	assert.Error(t, p.SetSignals(false, true))
	_, err := p.GetModemSignals()
	assert.Error(t, err)
}
