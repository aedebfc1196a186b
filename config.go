package dcamera

import (
	"fmt"
	"os"
	"time"

	"github.com/pion/dcamera/pkg/camerahost"
	"github.com/pion/dcamera/pkg/driver"
	"github.com/pion/dcamera/pkg/driver/camera"
	"github.com/pion/dcamera/pkg/driver/cmdsource"
	"github.com/pion/dcamera/pkg/frame"
	"github.com/pion/dcamera/pkg/media"
	"github.com/pion/dcamera/pkg/pipeline"
	"github.com/pion/dcamera/pkg/prop"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the manager and camera host options.
type Config struct {
	LocalDeviceID string     `yaml:"local_device_id"`
	Scaler        string     `yaml:"scaler"`
	Host          HostConfig `yaml:"host"`
}

// HostConfig configures a camera host and the cameras it can serve.
type HostConfig struct {
	MTU    int    `yaml:"mtu"`
	Scaler string `yaml:"scaler"`
	// V4L2 enables discovery of the local v4l2 devices.
	V4L2     bool            `yaml:"v4l2"`
	Commands []CommandCamera `yaml:"commands"`
}

// CommandCamera is a camera fed by a command printing raw frames.
type CommandCamera struct {
	Label       string        `yaml:"label"`
	Args        []string      `yaml:"args"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Modes       []ModeConfig  `yaml:"modes"`
}

// ModeConfig is one frame layout a command camera produces.
type ModeConfig struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	FrameRate float32 `yaml:"frame_rate"`
	// Format defaults to RGBA.
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file. Missing fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{
		Scaler: "bilinear",
		Host: HostConfig{
			MTU:    media.DefaultMTU,
			Scaler: "bilinear",
		},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Host.MTU <= 0 || cfg.Host.MTU > 65535 {
		return nil, fmt.Errorf("config: invalid mtu %d", cfg.Host.MTU)
	}
	for _, c := range cfg.Host.Commands {
		if len(c.Args) == 0 {
			return nil, fmt.Errorf("config: command camera %q has no args", c.Label)
		}
		if len(c.Modes) == 0 {
			return nil, fmt.Errorf("config: command camera %q has no modes", c.Label)
		}
	}
	return cfg, nil
}

// Options returns the manager options the config describes.
func (c *Config) Options() ([]ManagerOption, error) {
	sc, err := scaler(c.Scaler)
	if err != nil {
		return nil, err
	}
	return []ManagerOption{WithLocalDeviceID(c.LocalDeviceID), WithScaler(sc)}, nil
}

// HostOptions returns the camera host options the config describes.
func (c *Config) HostOptions() ([]camerahost.Option, error) {
	sc, err := scaler(c.Host.Scaler)
	if err != nil {
		return nil, err
	}
	return []camerahost.Option{camerahost.WithMTU(uint16(c.Host.MTU)), camerahost.WithScaler(sc)}, nil
}

// RegisterCameras adds the configured cameras to m and returns the command
// cameras it registered. Discovered v4l2 devices are queried from m.
func (c *Config) RegisterCameras(m *driver.Manager) ([]driver.Driver, error) {
	if c.Host.V4L2 {
		camera.Discover(m)
	}

	var drivers []driver.Driver
	for _, cc := range c.Host.Commands {
		props := make([]prop.Video, 0, len(cc.Modes))
		for _, mode := range cc.Modes {
			format := frame.Format(mode.Format)
			if format == "" {
				format = frame.FormatRGBA
			}
			props = append(props, prop.Video{
				Width:       mode.Width,
				Height:      mode.Height,
				FrameRate:   mode.FrameRate,
				FrameFormat: format,
				Codec:       frame.CodecRaw,
			})
		}
		d, err := cmdsource.Register(m, cc.Label, cc.Args, props, cc.ReadTimeout)
		if err != nil {
			return drivers, fmt.Errorf("config: command camera %q: %w", cc.Label, err)
		}
		drivers = append(drivers, d)
	}
	return drivers, nil
}

func scaler(name string) (pipeline.Scaler, error) {
	sc, ok := pipeline.ScalerByName[name]
	if !ok {
		return nil, fmt.Errorf("config: unknown scaler %q", name)
	}
	return sc, nil
}
