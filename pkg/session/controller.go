package session

import (
	"context"
	"sync"

	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/command"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/status"
)

// Controller owns the control channel conversation with the peer that owns
// the camera.
type Controller struct {
	key         hal.SessionKey
	localDevID  string
	provider    hal.Provider
	onPeerEvent func(hal.HalEvent)

	mu      sync.Mutex
	indexes []hal.SessionKey
	ch      channel.Channel
}

// NewController creates a controller for key. Peer STATE_NOTIFY records are
// handed to onPeerEvent.
func NewController(key hal.SessionKey, localDevID string, provider hal.Provider, onPeerEvent func(hal.HalEvent)) *Controller {
	return &Controller{
		key:         key,
		localDevID:  localDevID,
		provider:    provider,
		onPeerEvent: onPeerEvent,
	}
}

// Init registers the camera indexes the controller serves. Exactly one is
// supported.
func (c *Controller) Init(indexes []hal.SessionKey) error {
	if len(indexes) != 1 {
		return status.Errorf(status.InvalidArgument, "controller supports exactly one index, got %d", len(indexes))
	}
	if !indexes[0].Valid() {
		return status.Errorf(status.InvalidArgument, "invalid index %+v", indexes[0])
	}

	c.mu.Lock()
	c.indexes = append([]hal.SessionKey(nil), indexes...)
	c.mu.Unlock()
	return nil
}

// UnInit forgets the registered indexes.
func (c *Controller) UnInit() {
	c.mu.Lock()
	c.indexes = nil
	c.mu.Unlock()
}

func (c *Controller) checkIndex() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.indexes) != 1 {
		return status.Errorf(status.InvalidArgument, "controller has %d indexes", len(c.indexes))
	}
	return nil
}

// OpenChannel opens ch as the control channel and announces the session.
func (c *Controller) OpenChannel(ctx context.Context, ch channel.Channel) error {
	if err := c.checkIndex(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.ch != nil {
		c.mu.Unlock()
		return status.Errorf(status.OpenConflict, "control channel of %s is already open", c.key)
	}
	c.ch = ch
	c.mu.Unlock()

	if err := ch.Open(ctx, c.onReceive); err != nil {
		c.mu.Lock()
		c.ch = nil
		c.mu.Unlock()
		_ = ch.Close()
		return status.Errorf(status.BadOperate, "open control channel: %v", err)
	}
	return c.send(ctx, command.NewOpenChannel(c.key.HardwareID, c.localDevID))
}

// CloseChannel tells the peer the session is over and closes the channel.
func (c *Controller) CloseChannel(ctx context.Context) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return nil
	}

	sendErr := c.send(ctx, command.NewCloseChannel(c.key.HardwareID))
	c.mu.Lock()
	c.ch = nil
	c.mu.Unlock()
	if err := ch.Close(); err != nil {
		return status.Errorf(status.BadOperate, "close control channel: %v", err)
	}
	return sendErr
}

// ChannelNeg announces the data sessions the sink will use.
func (c *Controller) ChannelNeg(ctx context.Context, details []command.ChannelDetail) error {
	return c.send(ctx, command.NewChannelNeg(c.key.HardwareID, command.ChannelInfo{
		SourceDevID: c.localDevID,
		Detail:      details,
	}))
}

// StartCapture asks the peer to start capturing.
func (c *Controller) StartCapture(ctx context.Context, captures []hal.CaptureInfo) error {
	if len(captures) == 0 {
		return status.Errorf(status.InvalidArgument, "no capture to start")
	}
	return c.send(ctx, command.NewCapture(c.key.HardwareID, captures))
}

// StopCapture asks the peer to stop the given streams, all when ids is
// empty.
func (c *Controller) StopCapture(ctx context.Context, ids []int) error {
	return c.send(ctx, command.NewStopCapture(c.key.HardwareID, ids))
}

// UpdateSettings pushes camera metadata to the peer.
func (c *Controller) UpdateSettings(ctx context.Context, settings []hal.Setting) error {
	return c.send(ctx, command.NewUpdateMetadata(c.key.HardwareID, settings))
}

// DCameraNotify reports ev to the hardware layer.
func (c *Controller) DCameraNotify(ev hal.HalEvent) error {
	if err := c.checkIndex(); err != nil {
		return err
	}
	if err := c.provider.Notify(c.key, ev); err != nil {
		return status.Errorf(status.BadOperate, "notify: %v", err)
	}
	return nil
}

func (c *Controller) send(ctx context.Context, rec command.Record) error {
	if err := c.checkIndex(); err != nil {
		return err
	}

	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return status.Errorf(status.BadOperate, "control channel of %s is not open", c.key)
	}

	data, err := command.Marshal(rec)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "%v", err)
	}
	if err := ch.Send(ctx, data); err != nil {
		return status.Errorf(status.BadOperate, "send %s: %v", rec.Command, err)
	}
	logger.Debugf("%s: sent %s", c.key, rec.Command)
	return nil
}

func (c *Controller) onReceive(data []byte) {
	rec, err := command.Unmarshal(data)
	if err != nil {
		logger.Warnf("%s: dropping control record: %v", c.key, err)
		return
	}

	switch rec.Command {
	case command.MetadataResult:
		settings, _ := rec.Value.([]command.Setting)
		if err := c.provider.OnSettingsResult(c.key, command.ToSettings(settings)); err != nil {
			logger.Warnf("%s: settings result: %v", c.key, err)
		}
	case command.StateNotify:
		ev, _ := rec.Value.(command.Event)
		if c.onPeerEvent != nil {
			c.onPeerEvent(ev.HalEvent())
		}
	default:
		logger.Warnf("%s: unexpected %s from peer", c.key, rec.Command)
	}
}
