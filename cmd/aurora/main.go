// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/xlab/closer"

	"github.com/devblok/aurora/core"
	"github.com/devblok/aurora/gfx"
	"github.com/devblok/aurora/gfx/vkr"
)

func init() {
	runtime.LockOSThread()
}

var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	logLevel     = flag.String("loglevel", "", "Log level, overrides AURORA_LOG_LEVEL")
	envFile      = flag.String("env", ".env", "Dotenv file with AURORA_* settings")
	deviceIndex  = flag.Int("device", 0, "Index of the physical device to render with")
)

// statsInterval is how often frame statistics are logged.
const statsInterval = 5 * time.Second

func main() {
	flag.Parse()
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-stopped
	})

	err := run(ctx)
	close(stopped)
	if err != nil {
		log.WithError(err).Error("aurora stopped")
		closer.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := core.LoadConfiguration(*envFile)
	if err != nil {
		return errors.Wrap(err, "configuration")
	}
	if *logLevel != "" {
		if cfg.LogLevel, err = log.ParseLevel(*logLevel); err != nil {
			return errors.Wrap(err, "-loglevel")
		}
	}
	if *debug {
		cfg.Instance.Debug = true
	}
	log.SetLevel(cfg.LogLevel)

	stopProfiling, err := startProfiling()
	if err != nil {
		return err
	}
	defer stopProfiling()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "sdl.Init()")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := sdl.CreateWindow(cfg.Instance.Name,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "sdl.CreateWindow()")
	}
	defer window.Destroy()

	instance, err := vkr.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), vkr.InstanceConfiguration{
		Name:       cfg.Instance.Name,
		Extensions: window.VulkanGetInstanceExtensions(),
		Debug:      cfg.Instance.Debug,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Inner())
	if err != nil {
		return errors.Wrap(err, "window.VulkanCreateSurface()")
	}
	instance.SetSurface(surface)

	if infos := instance.PhysicalDevicesInfo(); *deviceIndex < len(infos) {
		log.WithFields(log.Fields{
			"device": infos[*deviceIndex].Name,
			"driver": infos[*deviceIndex].DriverVersion,
		}).Info("using physical device")
	}
	device, err := vkr.NewDevice(instance, *deviceIndex)
	if err != nil {
		return err
	}
	defer device.Destroy()

	dc := core.NewDeviceContext(device, log.StandardLogger(), cfg.Renderer)
	engine, err := core.NewEngine(dc, cfg.Renderer)
	if err != nil {
		return err
	}
	defer engine.Destroy()

	textures := builtinTextures()
	renderer, err := newBlitRenderer(engine, textures[0])
	if err != nil {
		return err
	}
	engine.Defer(renderer)

	return loop(ctx, cfg, engine, window, renderer)
}

func loop(ctx context.Context, cfg core.Configuration, engine *core.Engine, window *sdl.Window, renderers ...core.Renderer) error {
	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	var slowest time.Duration
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeService.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				if handleEvent(event, engine, window.VulkanGetDrawableSize) {
					log.Info("quit requested")
					return nil
				}
			}
		case <-timeService.FpsTicker().C:
			if engine.Minimized() {
				continue
			}
			if err := engine.RunFrame(renderers...); err != nil {
				return err
			}
			if delta := timeService.Tick(); delta > slowest {
				slowest = delta
			}
		case <-stats.C:
			log.WithFields(log.Fields{
				"frames":  engine.FrameNumber(),
				"average": timeService.AverageFrameTime(),
				"slowest": slowest,
				"cgo":     runtime.NumCgoCall(),
			}).Info("frame statistics")
			slowest = 0
		}
	}
}

// frameSink is the part of the engine window events are forwarded to.
type frameSink interface {
	NotifyResizeTo(extent gfx.Extent2D)
	NotifyMinimized(minimized bool)
}

// handleEvent forwards window events to the engine and
// reports whether the application should quit.
func handleEvent(event sdl.Event, sink frameSink, drawableSize func() (int32, int32)) bool {
	switch et := event.(type) {
	case *sdl.QuitEvent:
		return true
	case *sdl.KeyboardEvent:
		return et.Type == sdl.KEYDOWN && et.Keysym.Sym == sdl.K_ESCAPE
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_MINIMIZED:
			sink.NotifyMinimized(true)
		case sdl.WINDOWEVENT_RESTORED:
			sink.NotifyMinimized(false)
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w, h := drawableSize()
			if w < 0 || h < 0 {
				w, h = 0, 0
			}
			sink.NotifyResizeTo(gfx.Extent2D{Width: uint32(w), Height: uint32(h)})
		}
	}
	return false
}

func startProfiling() (func(), error) {
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			return nil, errors.Wrap(err, "-cpuprof")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "-cpuprof")
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			stop()
			return nil, errors.Wrap(err, "-trace")
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			stop()
			return nil, errors.Wrap(err, "-trace")
		}
		stops = append(stops, func() {
			trace.Stop()
			f.Close()
		})
	}

	if *memProfile != "" {
		path := *memProfile
		stops = append(stops, func() {
			f, err := os.Create(path)
			if err != nil {
				log.WithError(err).Error("write memory profile")
				return
			}
			defer f.Close()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.WithError(err).Error("write memory profile")
			}
		})
	}
	return stop, nil
}
