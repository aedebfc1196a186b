package frame

import "fmt"

// FrameSizeMap returns a function to get the number of bytes a frame will
// occupy in the given format.
var FrameSizeMap = map[Format]frameSizeFunc{
	FormatI420: frameSizeI420,
	FormatNV21: frameSizeNV21,
	FormatNV12: frameSizeNV21, // NV12 and NV21 have the same frame size
	FormatRGBA: frameSizeRGBA,
}

type frameSizeFunc func(width, height int) int

// FrameSize returns the byte size of an uncompressed width x height frame.
// Compressed formats have no fixed size and return an error.
func FrameSize(f Format, width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("frame: invalid resolution %dx%d", width, height)
	}

	fn, ok := FrameSizeMap[f]
	if !ok {
		return 0, fmt.Errorf("frame: no fixed frame size for format %q", f)
	}
	return fn(width, height), nil
}

func frameSizeI420(width, height int) int {
	yi := width * height
	cbi := yi + width*height/4
	cri := cbi + width*height/4
	return cri
}

func frameSizeNV21(width, height int) int {
	yi := width * height
	ci := yi + width*height/2
	return ci
}

func frameSizeRGBA(width, height int) int {
	return 4 * width * height
}
