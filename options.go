package dcamera

import (
	"github.com/pion/dcamera/pkg/pipeline"
	"github.com/pion/dcamera/pkg/session"
)

// ManagerOptions stores parameters used by Manager.
type ManagerOptions struct {
	listener   session.RegisterListener
	localDevID string
	scaler     pipeline.Scaler
}

// ManagerOption is a type of Manager functional option.
type ManagerOption func(*ManagerOptions)

// WithRegisterListener sets the listener of register and unregister
// outcomes.
func WithRegisterListener(l session.RegisterListener) ManagerOption {
	return func(o *ManagerOptions) {
		o.listener = l
	}
}

// WithLocalDeviceID sets the id this device announces to camera owners.
func WithLocalDeviceID(id string) ManagerOption {
	return func(o *ManagerOptions) {
		o.localDevID = id
	}
}

// WithScaler specifies the scaling algorithm used when a stream is
// delivered at a size different from the one captured.
func WithScaler(s pipeline.Scaler) ManagerOption {
	return func(o *ManagerOptions) {
		o.scaler = s
	}
}
