package main

//go:generate glslc shaders/shader.vert -o shaders/vert.spv
//go:generate glslc shaders/shader.frag -o shaders/frag.spv

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/frames/frame"
	"github.com/vkngwrapper/frames/vulkan"
)

type Application struct {
	cfg Config
	log *slog.Logger

	window *sdl.Window

	vk        *vulkan.Context
	surface   *vulkan.Surface
	geometry  *vulkan.Geometry
	cache     *vulkan.PipelineCache
	pipelines *vulkan.Pipelines
	renderer  *frame.Renderer
}

func (app *Application) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}

	err = app.initVulkan()
	if err != nil {
		app.cleanup()
		return err
	}

	err = app.mainLoop()
	cleanupErr := app.cleanup()
	if err != nil {
		return err
	}
	return cleanupErr
}

func (app *Application) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "initializing sdl")
	}

	window, err := sdl.CreateWindow(app.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(app.cfg.Window.Width), int32(app.cfg.Window.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return errors.Wrap(err, "creating window")
	}
	app.window = window

	return nil
}

func (app *Application) initVulkan() error {
	assets, err := loadAssets(app.cfg.Assets)
	if err != nil {
		return err
	}

	app.vk, err = vulkan.NewContext(app.window, vulkan.Options{
		ApplicationName: app.cfg.Window.Title,
		Validation:      app.cfg.Render.Validation,
		Multisample:     app.cfg.Render.Multisample,
		Logger:          app.log,
	})
	if err != nil {
		return err
	}
	app.surface = app.vk.Surface()

	uploads, err := app.vk.NewCommandPool()
	if err != nil {
		return err
	}
	app.geometry, err = app.vk.NewGeometry(uploads, assets.mesh)
	uploads.Destroy()
	if err != nil {
		return err
	}

	app.cache, err = app.vk.NewPipelineCache(app.cfg.Assets.PipelineCache, assets.pipelineCache)
	if err != nil {
		return err
	}

	app.pipelines, err = app.vk.NewPipelines(vulkan.PipelineConfig{
		VertexShader:   assets.vertexShader,
		FragmentShader: assets.fragmentShader,
		SetLayout:      app.geometry.SetLayout(),
		Cache:          app.cache,
		Logger:         app.log,
	})
	if err != nil {
		return err
	}

	commandPool, err := app.vk.NewCommandPool()
	if err != nil {
		return err
	}

	var presentModes []frame.PresentMode
	if app.cfg.Render.VSync {
		presentModes = []frame.PresentMode{frame.PresentModeFIFO}
	}

	app.renderer, err = frame.NewRenderer(frame.Collaborators{
		Device:      app.vk.Device(),
		Surface:     app.surface,
		Window:      app.vk.Window(),
		Swapchains:  app.vk.Swapchains(app.surface),
		Pipelines:   app.pipelines,
		Geometry:    app.geometry,
		CommandPool: commandPool,
	}, frame.Options{
		FramesInFlight:    app.cfg.Render.FramesInFlight,
		DesiredImageCount: app.cfg.Render.ImageCount,
		FenceTimeout:      app.cfg.Render.FenceTimeout.Duration,
		PresentModes:      presentModes,
		ClearColor:        frame.ClearColor{0, 0, 0, 1},
		BeforeSubmit:      app.updateUniforms,
		Logger:            app.log,
	})
	return err
}

func (app *Application) updateUniforms(imageIndex int) error {
	return app.geometry.UpdateUniforms(imageIndex, app.renderer.Swapchain().Extent())
}

func (app *Application) mainLoop() error {
	rendering := true
	lastStats := hrtime.Now()

appLoop:
	for true {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					err := app.renderer.Resize()
					if err != nil {
						return err
					}
				}
			}
		}

		if !rendering {
			sdl.Delay(10)
			continue
		}

		err := app.renderer.DrawFrame()
		if err != nil {
			return err
		}

		interval := app.cfg.Log.StatsInterval.Duration
		if interval > 0 && hrtime.Since(lastStats) >= interval {
			lastStats = hrtime.Now()
			app.logStats()
		}
	}

	app.logStats()
	return nil
}

func (app *Application) logStats() {
	stats := app.renderer.Stats()
	app.log.Info("frame stats",
		"frames", stats.Frames,
		"skipped", stats.Skipped,
		"recreations", stats.Recreations,
		"lastFrame", stats.LastFrame,
		"meanFrame", stats.MeanFrameTime(),
		"generation", app.renderer.Generation())
}

func (app *Application) cleanup() error {
	var err error

	if app.renderer != nil {
		err = app.renderer.Close()
		app.renderer = nil
	}

	if app.cache != nil {
		if saveErr := app.cache.Save(); saveErr != nil {
			app.log.Warn("saving pipeline cache", "err", saveErr)
		}
		app.cache.Destroy()
		app.cache = nil
	}

	if app.pipelines != nil {
		app.pipelines.Destroy()
		app.pipelines = nil
	}

	if app.geometry != nil {
		app.geometry.Destroy()
		app.geometry = nil
	}

	if app.vk != nil {
		app.vk.Destroy()
		app.vk = nil
	}

	if app.window != nil {
		app.window.Destroy()
		app.window = nil
	}
	sdl.Quit()

	return err
}

func newLogger(cfg Config) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func main() {
	runtime.LockOSThread()

	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("%+v\n", err)
	}

	app := &Application{cfg: cfg, log: logger}

	err = app.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
