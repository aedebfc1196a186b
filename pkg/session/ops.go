package session

import (
	"github.com/pion/dcamera/pkg/command"
	"github.com/pion/dcamera/pkg/event"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/status"
)

// DataSessionContinuous names the continuous data session in CHANNEL_NEG.
const DataSessionContinuous = "dataContinue"

// sessionOps carries out state actions for one SourceSession.
type sessionOps struct {
	s *SourceSession
}

func (o sessionOps) Key() hal.SessionKey { return o.s.key }

func (o sessionOps) RegisterHal(p event.RegisterParam) error {
	s := o.s
	if err := s.controller.Init([]hal.SessionKey{s.key}); err != nil {
		return err
	}
	if err := s.provider.EnableDevice(s.key, p.Attrs, s.callback); err != nil {
		s.controller.UnInit()
		return status.Errorf(status.HalRegisterFailed, "enable %s: %v", s.key, err)
	}
	logger.Infof("%s registered, version %q", s.key, p.Version)
	return nil
}

func (o sessionOps) UnregisterHal() error {
	s := o.s
	defer s.controller.UnInit()
	if err := s.provider.DisableDevice(s.key); err != nil {
		return status.Errorf(status.HalUnregisterFailed, "disable %s: %v", s.key, err)
	}
	logger.Infof("%s unregistered", s.key)
	return nil
}

func (o sessionOps) OpenSession() error {
	s := o.s
	control, data, err := s.transport.Connect(s.ctx, s.key)
	if err != nil {
		return status.Errorf(status.BadOperate, "connect %s: %v", s.key, err)
	}

	if err := s.controller.OpenChannel(s.ctx, control); err != nil {
		_ = s.controller.CloseChannel(s.ctx)
		_ = data.Close()
		return err
	}
	if err := s.input.OpenChannel(s.ctx, data); err != nil {
		_ = s.controller.CloseChannel(s.ctx)
		return err
	}
	details := []command.ChannelDetail{{DataSessionFlag: DataSessionContinuous, StreamType: int(hal.StreamContinuous)}}
	if err := s.controller.ChannelNeg(s.ctx, details); err != nil {
		_ = s.input.CloseChannel()
		_ = s.controller.CloseChannel(s.ctx)
		return err
	}
	return nil
}

func (o sessionOps) CloseSession() error {
	s := o.s
	err := s.controller.CloseChannel(s.ctx)
	if inErr := s.input.CloseChannel(); err == nil {
		err = inErr
	}
	return err
}

func (o sessionOps) ConfigStreams(streams []hal.StreamInfo) error {
	return o.s.input.ConfigStreams(streams)
}

func (o sessionOps) ReleaseStreams(ids []int) (bool, error) {
	return o.s.input.ReleaseStreams(ids)
}

func (o sessionOps) ReleaseAllStreams() error {
	o.s.input.ReleaseAllStreams()
	return nil
}

func (o sessionOps) StartCapture(captures []hal.CaptureInfo) error {
	s := o.s
	if err := s.input.StartCapture(captures); err != nil {
		return err
	}
	if err := s.controller.StartCapture(s.ctx, captures); err != nil {
		var ids []int
		for _, c := range captures {
			ids = append(ids, c.StreamIDs...)
		}
		s.input.StopCapture(ids)
		return err
	}
	return nil
}

func (o sessionOps) StopCapture(ids []int) (bool, error) {
	s := o.s
	err := s.controller.StopCapture(s.ctx, ids)
	idle := s.input.StopCapture(ids)
	return idle, err
}

func (o sessionOps) UpdateSettings(settings []hal.Setting) error {
	return o.s.controller.UpdateSettings(o.s.ctx, settings)
}

func (o sessionOps) Notify(ev hal.HalEvent) error {
	return o.s.controller.DCameraNotify(ev)
}

// callbackAdapter turns hardware layer calls into session events.
type callbackAdapter struct {
	s *SourceSession
}

func (c *callbackAdapter) OpenSession() error  { return c.s.OpenSession() }
func (c *callbackAdapter) CloseSession() error { return c.s.CloseSession() }

func (c *callbackAdapter) ConfigureStreams(streams []hal.StreamInfo) error {
	return c.s.ConfigureStreams(streams)
}

func (c *callbackAdapter) ReleaseStreams(ids []int) error {
	return c.s.ReleaseStreams(ids)
}

func (c *callbackAdapter) StartCapture(captures []hal.CaptureInfo) error {
	return c.s.StartCapture(captures)
}

func (c *callbackAdapter) StopCapture() error {
	return c.s.StopCapture(nil)
}

func (c *callbackAdapter) UpdateSettings(settings []hal.Setting) error {
	return c.s.UpdateSettings(settings)
}
