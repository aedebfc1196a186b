package driver

// DeviceType represents human readable device type. DeviceType
// can be useful to filter the drivers too.
type DeviceType string

const (
	// Camera represents camera devices
	Camera DeviceType = "camera"
	// VirtualCamera represents synthetic or file backed cameras
	VirtualCamera DeviceType = "virtual_camera"
)

// Priority represents how much a driver should be preferred over the others
// of the same type.
type Priority float32

const (
	PriorityHigh   Priority = 0.1
	PriorityNormal Priority = 0.0
	PriorityLow    Priority = -0.1
)
