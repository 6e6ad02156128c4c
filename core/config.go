package core

import (
	"os"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Instance InstanceConfiguration

	LogLevel log.Level
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the window event polling interval in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize  uint32
	FramesInFlight int

	// FenceTimeout bounds every fence wait, zero waits forever
	FenceTimeout time.Duration

	ScreenWidth  uint32
	ScreenHeight uint32
}

// InstanceConfiguration is used to configure the graphics API instance
type InstanceConfiguration struct {
	Name  string
	Debug bool
}

// Environment keys read by LoadConfiguration.
const (
	EnvFramesPerSecond = "AURORA_FPS"
	EnvEventPollDelay  = "AURORA_EVENT_POLL_DELAY"
	EnvScreenWidth     = "AURORA_SCREEN_WIDTH"
	EnvScreenHeight    = "AURORA_SCREEN_HEIGHT"
	EnvSwapchainSize   = "AURORA_SWAPCHAIN_SIZE"
	EnvFramesInFlight  = "AURORA_FRAMES_IN_FLIGHT"
	EnvFenceTimeout    = "AURORA_FENCE_TIMEOUT"
	EnvDebug           = "AURORA_DEBUG"
	EnvLogLevel        = "AURORA_LOG_LEVEL"
)

// DefaultConfiguration returns the configuration used when nothing
// is set in the environment.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  10,
		},
		Renderer: RendererConfiguration{
			SwapchainSize:  3,
			FramesInFlight: FramesInFlight,
			ScreenWidth:    1280,
			ScreenHeight:   720,
		},
		Instance: InstanceConfiguration{
			Name: "aurora",
		},
		LogLevel: log.InfoLevel,
	}
}

// LoadConfiguration reads the dotenv file at path, if it exists, and
// resolves every setting from the environment on top of the defaults.
func LoadConfiguration(path string) (Configuration, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return Configuration{}, errors.Wrapf(err, "load %s", path)
		}
	}
	envy.Reload()

	cfg := DefaultConfiguration()
	var err error
	if cfg.Time.FramesPerSecond, err = envInt(EnvFramesPerSecond, cfg.Time.FramesPerSecond); err != nil {
		return Configuration{}, err
	}
	if cfg.Time.EventPollDelay, err = envInt(EnvEventPollDelay, cfg.Time.EventPollDelay); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.ScreenWidth, err = envUint32(EnvScreenWidth, cfg.Renderer.ScreenWidth); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.ScreenHeight, err = envUint32(EnvScreenHeight, cfg.Renderer.ScreenHeight); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.SwapchainSize, err = envUint32(EnvSwapchainSize, cfg.Renderer.SwapchainSize); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.FramesInFlight, err = envInt(EnvFramesInFlight, cfg.Renderer.FramesInFlight); err != nil {
		return Configuration{}, err
	}
	if v := envy.Get(EnvFenceTimeout, ""); v != "" {
		if cfg.Renderer.FenceTimeout, err = time.ParseDuration(v); err != nil {
			return Configuration{}, errors.Wrapf(err, "%s", EnvFenceTimeout)
		}
	}
	if v := envy.Get(EnvDebug, ""); v != "" {
		if cfg.Instance.Debug, err = strconv.ParseBool(v); err != nil {
			return Configuration{}, errors.Wrapf(err, "%s", EnvDebug)
		}
	}
	if v := envy.Get(EnvLogLevel, ""); v != "" {
		if cfg.LogLevel, err = log.ParseLevel(v); err != nil {
			return Configuration{}, errors.Wrapf(err, "%s", EnvLogLevel)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the engine cannot run with.
func (c Configuration) Validate() error {
	if c.Renderer.FramesInFlight != FramesInFlight {
		return errors.Errorf("frames in flight must be %d, got %d", FramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Renderer.ScreenWidth == 0 || c.Renderer.ScreenHeight == 0 {
		return errors.Errorf("screen size %dx%d has no area", c.Renderer.ScreenWidth, c.Renderer.ScreenHeight)
	}
	if c.Time.FramesPerSecond < 0 {
		return errors.Errorf("negative frames per second %d", c.Time.FramesPerSecond)
	}
	if c.Time.EventPollDelay <= 0 {
		return errors.Errorf("event poll delay must be positive, got %d", c.Time.EventPollDelay)
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	v := envy.Get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return n, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	v := envy.Get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}
	return uint32(n), nil
}
