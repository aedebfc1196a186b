// Package camerahost implements the peer that owns a camera. It answers the
// control commands a sink session sends, captures from a driver, runs every
// capture through a source pipeline and streams the result back.
package camerahost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pion/dcamera/internal/logging"
	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/channel"
	"github.com/pion/dcamera/pkg/command"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/hal"
	"github.com/pion/dcamera/pkg/media"
	"github.com/pion/dcamera/pkg/pipeline"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
	"golang.org/x/sync/errgroup"
)

var logger = logging.NewLogger("camerahost")

// Option configures a Host.
type Option func(*Host)

// WithMTU sets the media packet size.
func WithMTU(mtu uint16) Option {
	return func(h *Host) {
		h.mtu = mtu
	}
}

// WithScaler sets the scaling algorithm of the capture pipelines.
func WithScaler(s pipeline.Scaler) Option {
	return func(h *Host) {
		h.scaler = s
	}
}

// Host serves one camera, identified by its hardware id, to at most one
// sink at a time. It satisfies session.Transport: Connect hands out the sink
// ends of a fresh in-process channel pair.
type Host struct {
	dhID   string
	drv    driver.Driver
	mtu    uint16
	scaler pipeline.Scaler

	mu       sync.Mutex
	conn     *conn
	sinkID   string
	details  []command.ChannelDetail
	settings []hal.Setting
	run      *captureRun
	detaches sync.WaitGroup
}

type conn struct {
	ctrl, data *channel.PipeEnd
	sender     *media.Sender
	ctx        context.Context
	cancel     context.CancelFunc

	once sync.Once
	done chan struct{}
}

// New creates a host serving drv as hardware dhID.
func New(dhID string, drv driver.Driver, opts ...Option) (*Host, error) {
	if dhID == "" || drv == nil {
		return nil, status.Errorf(status.InvalidArgument, "camerahost needs a hardware id and a driver")
	}
	h := &Host{dhID: dhID, drv: drv, mtu: media.DefaultMTU}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// HardwareID returns the id the host answers to.
func (h *Host) HardwareID() string { return h.dhID }

// Capturing reports whether a capture is running.
func (h *Host) Capturing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run != nil
}

// Connect attaches a sink and returns its control and data channels.
func (h *Host) Connect(ctx context.Context, key hal.SessionKey) (channel.Channel, channel.Channel, error) {
	if key.HardwareID != h.dhID {
		return nil, nil, status.Errorf(status.NotFound, "camera %s is not served here", key.HardwareID)
	}

	h.mu.Lock()
	prev := h.conn
	h.mu.Unlock()
	if prev != nil {
		select {
		case <-prev.done:
		default:
			if !prev.closing() {
				return nil, nil, status.Errorf(status.OpenConflict, "camera %s is already connected", h.dhID)
			}
			<-prev.done
		}
	}

	sinkCtrl, ctrl := channel.NewPipe()
	sinkData, data := channel.NewPipe()
	c := &conn{
		ctrl:   ctrl,
		data:   data,
		sender: media.NewSender(data, media.WithMTU(h.mtu)),
		done:   make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := ctrl.Open(ctx, func(b []byte) { h.onControl(c, b) }); err != nil {
		c.cancel()
		return nil, nil, err
	}
	if err := data.Open(ctx, nil); err != nil {
		_ = ctrl.Close()
		c.cancel()
		return nil, nil, err
	}

	h.mu.Lock()
	h.conn = c
	h.mu.Unlock()
	logger.Infof("%s: sink connected", h.dhID)
	return sinkCtrl, sinkData, nil
}

func (c *conn) closing() bool {
	return c.ctx.Err() != nil
}

// Close stops any capture, closes the driver and drops the sink. It must not
// be called from a pipeline or channel callback.
func (h *Host) Close() error {
	h.stopCapture(nil)
	err := h.drv.Close()

	h.mu.Lock()
	c := h.conn
	h.mu.Unlock()
	if c != nil {
		h.detach(c)
	}
	h.detaches.Wait()
	return err
}

func (h *Host) detach(c *conn) {
	c.once.Do(func() {
		c.cancel()
		_ = c.ctrl.Close()
		_ = c.data.Close()

		h.mu.Lock()
		if h.conn == c {
			h.conn = nil
		}
		h.mu.Unlock()
		close(c.done)
		logger.Infof("%s: sink detached", h.dhID)
	})
}

func (h *Host) onControl(c *conn, data []byte) {
	rec, err := command.Unmarshal(data)
	if err != nil {
		logger.Warnf("%s: dropping control record: %v", h.dhID, err)
		return
	}
	if rec.DhID != h.dhID {
		h.reply(c, failure(hal.ResultDeviceError, status.Errorf(status.NotFound, "unknown camera %s", rec.DhID)))
		return
	}
	logger.Debugf("%s: received %s", h.dhID, rec.Command)

	switch rec.Command {
	case command.OpenChannel:
		info, _ := rec.Value.(command.OpenInfo)
		h.mu.Lock()
		h.sinkID = info.SourceDevID
		h.mu.Unlock()
		if h.drv.Status() == driver.StateClosed {
			if err := h.drv.Open(); err != nil {
				h.reply(c, failure(hal.ResultDeviceError, err))
				return
			}
		}
		h.reply(c, hal.HalEvent{Type: hal.EventMessage, Result: hal.ResultChannelConnected, Content: "camera opened"})
	case command.ChannelNeg:
		info, _ := rec.Value.(command.ChannelInfo)
		h.mu.Lock()
		h.details = info.Detail
		h.mu.Unlock()
	case command.Capture:
		infos, _ := rec.Value.([]command.CaptureInfo)
		captures := make([]hal.CaptureInfo, 0, len(infos))
		for _, i := range infos {
			captures = append(captures, i.ToCaptureInfo())
		}
		if err := h.startCapture(c, captures); err != nil {
			h.reply(c, failure(hal.ResultCaptureFailed, err))
		}
	case command.StopCapture:
		ids, _ := rec.Value.([]int)
		h.stopCapture(ids)
	case command.UpdateMetadata:
		values, _ := rec.Value.([]command.Setting)
		settings := command.ToSettings(values)
		h.mu.Lock()
		h.settings = append(h.settings, settings...)
		h.mu.Unlock()
		h.send(c, command.NewMetadataResult(h.dhID, settings))
	case command.CloseChannel:
		h.stopCapture(nil)
		if err := h.drv.Close(); err != nil {
			logger.Warnf("%s: close driver: %v", h.dhID, err)
		}
		// The channel cannot be closed from its own receive callback.
		c.cancel()
		h.detaches.Add(1)
		go func() {
			defer h.detaches.Done()
			h.detach(c)
		}()
	default:
		logger.Warnf("%s: unexpected %s from sink", h.dhID, rec.Command)
	}
}

// Negotiation returns the device id the sink announced and the data
// sessions it negotiated.
func (h *Host) Negotiation() (string, []command.ChannelDetail) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sinkID, append([]command.ChannelDetail(nil), h.details...)
}

// Settings returns every metadata update received so far.
func (h *Host) Settings() []hal.Setting {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hal.Setting(nil), h.settings...)
}

func (h *Host) reply(c *conn, ev hal.HalEvent) {
	h.send(c, command.NewStateNotify(h.dhID, ev))
}

func (h *Host) send(c *conn, rec command.Record) {
	data, err := command.Marshal(rec)
	if err != nil {
		logger.Errorf("%s: encode %s: %v", h.dhID, rec.Command, err)
		return
	}
	if err := c.ctrl.Send(c.ctx, data); err != nil {
		logger.Warnf("%s: send %s: %v", h.dhID, rec.Command, err)
	}
}

func failure(result int, err error) hal.HalEvent {
	return hal.HalEvent{
		Type:    hal.EventMessage,
		Result:  result,
		Code:    status.CodeOf(err),
		Content: err.Error(),
	}
}

// captureRun is one recording of the driver fanned out to a source pipeline
// per capture.
type captureRun struct {
	cancel context.CancelFunc
	group  *errgroup.Group
	outs   []*captureOut

	mu     sync.Mutex
	active map[int]bool
}

type captureOut struct {
	pipe *pipeline.Pipeline
	ids  []int
}

func (r *captureRun) isActive(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[id]
}

// stop removes ids from the run, every id when ids is empty, and reports
// whether the run has nothing left to send.
func (r *captureRun) stop(ids []int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(ids) == 0 {
		r.active = map[int]bool{}
	}
	for _, id := range ids {
		delete(r.active, id)
	}
	return len(r.active) == 0
}

// mode picks the driver mode closest to the largest capture.
func (h *Host) mode(captures []hal.CaptureInfo) (prop.Video, error) {
	var ideal prop.Video
	for _, c := range captures {
		if c.Width*c.Height > ideal.Width*ideal.Height {
			ideal.Width, ideal.Height = c.Width, c.Height
		}
		if c.FrameRate > ideal.FrameRate {
			ideal.FrameRate = c.FrameRate
		}
	}
	mode, ok := prop.SelectBest(ideal, h.drv.Properties())
	if !ok {
		return prop.Video{}, status.Errorf(status.NotFound, "camera %s reports no mode", h.dhID)
	}
	if mode.FrameFormat == "" {
		mode.FrameFormat = frame.FormatRGBA
	}
	if mode.Codec == "" {
		mode.Codec = frame.CodecRaw
	}
	return mode, nil
}

func (h *Host) startCapture(c *conn, captures []hal.CaptureInfo) error {
	if len(captures) == 0 {
		return status.Errorf(status.InvalidArgument, "no capture to start")
	}
	h.mu.Lock()
	running := h.run != nil
	h.mu.Unlock()
	if running {
		return status.Errorf(status.AlreadyExists, "camera %s is already capturing", h.dhID)
	}

	mode, err := h.mode(captures)
	if err != nil {
		return err
	}

	run := &captureRun{active: make(map[int]bool)}
	release := func() {
		for _, o := range run.outs {
			o.pipe.Destroy()
		}
	}
	for _, capture := range captures {
		if len(capture.StreamIDs) == 0 {
			release()
			return status.Errorf(status.InvalidArgument, "capture without stream ids")
		}
		out := &captureOut{ids: append([]int(nil), capture.StreamIDs...)}
		for _, id := range out.ids {
			run.active[id] = true
		}

		out.pipe = pipeline.NewSource(
			pipeline.WithName(h.dhID+"/"+strconv.Itoa(out.ids[0])),
			pipeline.WithScaler(h.scaler),
			pipeline.WithErrorListener(func(err error) {
				h.reply(c, failure(hal.ResultCaptureFailed, err))
			}),
		)
		if err := out.pipe.Create(mode, captureTarget(capture, mode), func(bufs []*buffer.DataBuffer) {
			h.emit(c, run, out.ids, bufs)
		}); err != nil {
			release()
			return err
		}
		run.outs = append(run.outs, out)
	}

	reader, err := h.drv.VideoRecord(mode)
	if err != nil {
		release()
		return status.Errorf(status.BadOperate, "record %s: %v", mode, err)
	}

	ctx, cancel := context.WithCancel(c.ctx)
	run.cancel = cancel
	run.group, ctx = errgroup.WithContext(ctx)
	run.group.Go(func() error {
		return h.feed(ctx, reader, run)
	})

	h.mu.Lock()
	h.run = run
	h.mu.Unlock()
	logger.Infof("%s: capturing %s for %d capture(s)", h.dhID, mode, len(captures))
	return nil
}

func (h *Host) feed(ctx context.Context, r driver.Reader, run *captureRun) error {
	for {
		b, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		for _, o := range run.outs {
			if err := o.pipe.ProcessData([]*buffer.DataBuffer{b.Clone()}); err != nil {
				logger.Debugf("%s: %v", h.dhID, err)
			}
		}
	}
}

func (h *Host) emit(c *conn, run *captureRun, ids []int, bufs []*buffer.DataBuffer) {
	for _, id := range ids {
		if !run.isActive(id) {
			continue
		}
		for _, b := range bufs {
			if err := c.sender.Send(c.ctx, id, b); err != nil {
				logger.Debugf("%s: stream %d: %v", h.dhID, id, err)
			}
		}
	}
}

// stopCapture stops ids, every stream when empty. The recording ends once no
// stream is left.
func (h *Host) stopCapture(ids []int) {
	h.mu.Lock()
	run := h.run
	if run == nil || !run.stop(ids) {
		h.mu.Unlock()
		return
	}
	h.run = nil
	h.mu.Unlock()

	run.cancel()
	// Closing the driver unblocks the reader.
	if err := h.drv.Close(); err != nil {
		logger.Warnf("%s: close driver: %v", h.dhID, err)
	}
	if err := run.group.Wait(); err != nil {
		logger.Warnf("%s: capture ended: %v", h.dhID, err)
	}
	for _, o := range run.outs {
		o.pipe.Destroy()
	}
	if err := h.drv.Open(); err != nil {
		logger.Warnf("%s: reopen driver: %v", h.dhID, err)
	}
	logger.Infof("%s: capture stopped", h.dhID)
}

// captureTarget is what the sink asked for, filled in from the driver mode.
func captureTarget(c hal.CaptureInfo, mode prop.Video) prop.Video {
	t := prop.Video{
		Width:       c.Width,
		Height:      c.Height,
		FrameRate:   c.FrameRate,
		FrameFormat: frame.FormatRGBA,
		Codec:       c.EncodeType,
	}
	if t.Width == 0 || t.Height == 0 {
		t.Width, t.Height = mode.Width, mode.Height
	}
	if t.FrameRate == 0 {
		t.FrameRate = mode.FrameRate
	}
	if t.Codec == "" {
		t.Codec = frame.CodecRaw
	}
	return t
}
