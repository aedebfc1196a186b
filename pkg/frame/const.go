package frame

// Format is the pixel layout of an uncompressed frame.
type Format string

const (
	// YUV Formats

	// FormatI420 https://www.fourcc.org/pixel-format/yuv-i420/
	FormatI420 Format = "I420"
	// FormatNV12 https://www.fourcc.org/pixel-format/yuv-nv12/
	FormatNV12 Format = "NV12"
	// FormatNV21 https://www.fourcc.org/pixel-format/yuv-nv21/
	FormatNV21 Format = "NV21"

	// RGB Formats

	// FormatRGBA is 8 bits per channel, R G B A in memory order
	FormatRGBA Format = "RGBA"

	// Compressed Formats

	// FormatJPEG is a single JPEG picture per frame
	FormatJPEG Format = "JPEG"
)

// YUV aliases

// FormatYUV420 is an alias of FormatI420
const FormatYUV420 = FormatI420

// Codec identifies how frame payloads are encoded on the wire.
type Codec string

const (
	// CodecRaw means frames carry uncompressed pixels in their Format.
	CodecRaw Codec = "raw"
	// CodecMJPEG means every frame is an independent JPEG picture.
	CodecMJPEG Codec = "mjpeg"
	CodecH264  Codec = "h264"
	CodecH265  Codec = "h265"
)

// Compressed reports whether c carries compressed payloads.
func (c Codec) Compressed() bool {
	return c != CodecRaw && c != ""
}
