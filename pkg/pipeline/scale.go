package pipeline

import (
	"image"

	"github.com/pion/dcamera/pkg/buffer"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/prop"
	"github.com/pion/dcamera/pkg/status"
	"golang.org/x/image/draw"
)

// Scaler represents scaling algorithm
type Scaler draw.Scaler

// List of scaling algorithms
var (
	ScalerNearestNeighbor = Scaler(draw.NearestNeighbor)
	ScalerApproxBiLinear  = Scaler(draw.ApproxBiLinear)
	ScalerBiLinear        = Scaler(draw.BiLinear)
	ScalerCatmullRom      = Scaler(draw.CatmullRom)
)

// ScalerByName maps configuration names to scalers.
var ScalerByName = map[string]Scaler{
	"nearest":         ScalerNearestNeighbor,
	"approx-bilinear": ScalerApproxBiLinear,
	"bilinear":        ScalerBiLinear,
	"catmull-rom":     ScalerCatmullRom,
}

// ScaleNode resizes raw RGBA frames to the target resolution.
type ScaleNode struct {
	link

	scaler   Scaler
	src, dst image.Rectangle
	srcSize  int
}

// NewScaleNode creates a scale node. A nil scaler means nearest neighbor.
func NewScaleNode(scaler Scaler) *ScaleNode {
	if scaler == nil {
		scaler = ScalerNearestNeighbor
	}
	return &ScaleNode{scaler: scaler}
}

func (n *ScaleNode) Init(source, target prop.Video) error {
	if source.Codec.Compressed() || source.FrameFormat != frame.FormatRGBA {
		return status.Errorf(status.InvalidArgument, "scaling needs raw RGBA input, got %s", source)
	}
	size, err := frame.FrameSize(frame.FormatRGBA, source.Width, source.Height)
	if err != nil {
		return status.Errorf(status.InvalidArgument, "%v", err)
	}
	if target.Width <= 0 || target.Height <= 0 {
		return status.Errorf(status.InvalidArgument, "invalid target resolution %dx%d", target.Width, target.Height)
	}

	n.src = image.Rect(0, 0, source.Width, source.Height)
	n.dst = image.Rect(0, 0, target.Width, target.Height)
	n.srcSize = size
	n.released.Store(false)
	return nil
}

func (n *ScaleNode) Process(bufs []*buffer.DataBuffer) error {
	if err := n.checkReleased(); err != nil {
		return err
	}

	out := make([]*buffer.DataBuffer, 0, len(bufs))
	for _, b := range bufs {
		pix := b.Data()
		if len(pix) < n.srcSize {
			return status.Errorf(status.InvalidArgument, "frame has %d bytes, expected %d", len(pix), n.srcSize)
		}

		src := &image.RGBA{Pix: pix[:n.srcSize], Stride: 4 * n.src.Dx(), Rect: n.src}
		dst := image.NewRGBA(n.dst)
		n.scaler.Scale(dst, n.dst, src, n.src, draw.Src, nil)

		scaled := buffer.Wrap(dst.Pix)
		scaled.CopyMeta(b)
		scaled.SetInt64(buffer.KeyWidth, int64(n.dst.Dx()))
		scaled.SetInt64(buffer.KeyHeight, int64(n.dst.Dy()))
		out = append(out, scaled)
	}
	return n.forward(out)
}

func (n *ScaleNode) Release() {
	n.released.Store(true)
}
