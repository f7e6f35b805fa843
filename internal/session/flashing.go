package session

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/tracer"
)

// StartFlashing suspends the monitor, flashes v at flashBaud and then puts the
// monitor back at the baud rate it had before. Only errors from the flashing
// itself are returned; restoration problems end up on the console and in the
// log. Restoration runs even when ctx is cancelled.
func (s *Session) StartFlashing(ctx context.Context, v flash.Version, erase bool, flashBaud int) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != MonitorActive || s.device == nil || !s.device.IsOpen() {
		return &NotConnectedError{Op: "start flashing", State: st}
	}
	if s.flasher == nil {
		return ErrNoFlasher
	}

	fs := flash.NewSession(v, erase, flashBaud, int(s.baud.Load()))
	log := s.logger.With("flash_session", fs.ID.String())

	ctx, span := tracer.StartSpan(ctx, "session.flash", trace.WithAttributes(
		tracer.StringAttr("session.id", fs.ID.String()),
		tracer.StringAttr("version", v.String()),
		tracer.IntAttr("baud.saved", fs.SavedBaudRate),
		tracer.IntAttr("baud.flash", flashBaud),
		tracer.BoolAttr("erase", erase),
	))
	defer func() { tracer.End(span, err) }()

	log.Info("flashing started", "version", v.String(), "path", s.device.Path())
	s.say("Preparing for flashing...")

	s.cancelScheduled()
	s.loop.Stop()
	if cerr := s.device.Close(); cerr != nil {
		log.Warn("close before flashing", "error", cerr)
	}
	s.setState(Suspended)

	s.setState(Flashing)
	err = s.flasher.Flash(ctx, fs, s.device.Path())
	if err != nil {
		log.Error("flashing failed", "error", err)
	} else {
		log.Info("flashing complete", "chip", fs.Chip, "bytes", fs.Bytes())
	}

	s.restore(context.WithoutCancel(ctx), fs, log)
	return err
}

// restore reopens the port at the saved rate, double resets the chip and
// restarts the monitor. The session ends in MonitorActive unless the port
// could not be reopened.
func (s *Session) restore(ctx context.Context, fs *flash.Session, log *slog.Logger) {
	s.setState(Restoring)
	s.say("Restoring serial connection...")

	if err := s.device.Open(fs.SavedBaudRate); err != nil {
		s.restoreFailed(log, &flash.RestorationError{Op: "reopen", Cause: err})
		s.baud.Store(0)
		s.setState(Disconnected)
		return
	}
	s.baud.Store(int64(fs.SavedBaudRate))

	s.say("Performing 1st Hard Reset...")
	resetErr := flash.DoubleReset(ctx, s.device, s.timing.Reset, s.sleep)
	if resetErr != nil {
		s.restoreFailed(log, &flash.RestorationError{Op: "double reset", Cause: resetErr})
	}

	s.setState(MonitorActive)
	if err := s.loop.Start(s.device); err != nil {
		s.restoreFailed(log, &flash.RestorationError{Op: "start monitor", Cause: err})
		return
	}

	if resetErr == nil {
		s.say("Device ready (Double Reset completed).")
	}
	log.Info("monitor restored", "baud", fs.SavedBaudRate)
}

func (s *Session) restoreFailed(log *slog.Logger, err error) {
	log.Error("restore failed", "error", err)
	s.say("Error during restoration: %v", err)
	s.say("Note: Please manually reconnect if serial monitor is needed.")
}
