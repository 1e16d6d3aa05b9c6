package main

import (
	"bytes"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as a string such as "10s" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

type RenderConfig struct {
	FramesInFlight int `toml:"frames_in_flight"`
	// ImageCount is the desired swap chain length. Zero asks for one image more than the
	// surface minimum.
	ImageCount   int      `toml:"image_count"`
	FenceTimeout Duration `toml:"fence_timeout"`
	Validation   bool     `toml:"validation"`
	Multisample  bool     `toml:"multisample"`
	// VSync restricts presentation to FIFO.
	VSync bool `toml:"vsync"`
}

type AssetConfig struct {
	VertexShader   string `toml:"vertex_shader"`
	FragmentShader string `toml:"fragment_shader"`
	// Mesh is an OBJ file. The built-in cube is drawn when it is empty.
	Mesh     string `toml:"mesh"`
	Material string `toml:"material"`
	// PipelineCache is loaded at startup and written at shutdown. Empty disables it.
	PipelineCache string `toml:"pipeline_cache"`
}

type LogConfig struct {
	Level         string   `toml:"level"`
	StatsInterval Duration `toml:"stats_interval"`
}

type Config struct {
	Window WindowConfig `toml:"window"`
	Render RenderConfig `toml:"render"`
	Assets AssetConfig  `toml:"assets"`
	Log    LogConfig    `toml:"log"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Title:  "Vulkan",
			Width:  800,
			Height: 600,
		},
		Render: RenderConfig{
			FramesInFlight: 2,
			FenceTimeout:   Duration{10 * time.Second},
			Validation:     true,
			Multisample:    true,
		},
		Assets: AssetConfig{
			VertexShader:   "shaders/vert.spv",
			FragmentShader: "shaders/frag.spv",
			PipelineCache:  "pipeline.cache",
		},
		Log: LogConfig{
			Level:         "info",
			StatsInterval: Duration{5 * time.Second},
		},
	}
}

func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Window.Title, "title", c.Window.Title, "window title")
	fs.IntVar(&c.Window.Width, "width", c.Window.Width, "initial window width")
	fs.IntVar(&c.Window.Height, "height", c.Window.Height, "initial window height")

	fs.IntVar(&c.Render.FramesInFlight, "frames-in-flight", c.Render.FramesInFlight, "frames the CPU may record ahead of the GPU")
	fs.IntVar(&c.Render.ImageCount, "image-count", c.Render.ImageCount, "desired swap chain images, 0 for one more than the minimum")
	fs.DurationVar(&c.Render.FenceTimeout.Duration, "fence-timeout", c.Render.FenceTimeout.Duration, "longest wait for a frame before giving up")
	fs.BoolVar(&c.Render.Validation, "validation", c.Render.Validation, "enable the Khronos validation layer")
	fs.BoolVar(&c.Render.Multisample, "msaa", c.Render.Multisample, "render with the highest supported sample count")
	fs.BoolVar(&c.Render.VSync, "vsync", c.Render.VSync, "present in FIFO mode only")

	fs.StringVar(&c.Assets.VertexShader, "vert", c.Assets.VertexShader, "vertex shader SPIR-V")
	fs.StringVar(&c.Assets.FragmentShader, "frag", c.Assets.FragmentShader, "fragment shader SPIR-V")
	fs.StringVar(&c.Assets.Mesh, "mesh", c.Assets.Mesh, "OBJ mesh, empty for the built-in cube")
	fs.StringVar(&c.Assets.Material, "mtl", c.Assets.Material, "MTL material library for -mesh")
	fs.StringVar(&c.Assets.PipelineCache, "pipeline-cache", c.Assets.PipelineCache, "pipeline cache file, empty to disable")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "debug, info, warn or error")
	fs.DurationVar(&c.Log.StatsInterval.Duration, "stats-interval", c.Log.StatsInterval.Duration, "frame statistics log interval, 0 to disable")
}

// LoadConfig builds the configuration from defaults, then the TOML file named by -config,
// then the remaining command line flags.
func LoadConfig(args []string) (Config, error) {
	var path string

	scratch := DefaultConfig()
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "TOML config file")
	scratch.bindFlags(fs)
	err := fs.Parse(args)
	if err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "reading config")
		}

		cfg, err = ParseConfig(data)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config %s", path)
		}
	}

	fs = flag.NewFlagSet("frames", flag.ContinueOnError)
	fs.StringVar(&path, "config", path, "TOML config file")
	cfg.bindFlags(fs)
	err = fs.Parse(args)
	if err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// ParseConfig decodes a TOML document over the defaults. Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "decoding toml")
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Render.FramesInFlight < 1 {
		return errors.Newf("frames in flight must be at least 1, got %d", c.Render.FramesInFlight)
	}
	if c.Render.ImageCount < 0 {
		return errors.Newf("image count must not be negative, got %d", c.Render.ImageCount)
	}
	if c.Render.FenceTimeout.Duration <= 0 {
		return errors.Newf("fence timeout must be positive, got %s", c.Render.FenceTimeout)
	}
	if c.Assets.VertexShader == "" || c.Assets.FragmentShader == "" {
		return errors.New("both shaders are required")
	}
	if c.Log.StatsInterval.Duration < 0 {
		return errors.Newf("stats interval must not be negative, got %s", c.Log.StatsInterval)
	}
	_, err := c.LogLevel()
	return err
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	if err != nil {
		return level, errors.Wrapf(err, "log level %q", c.Log.Level)
	}
	return level, nil
}
