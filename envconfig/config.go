package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// Set via NEURALLENSE_DEBUG in the environment
	Debug bool
	// Set via NEURALLENSE_TRACE in the environment
	Trace bool
	// Set via NEURALLENSE_HOST in the environment
	Host string
	// Set via NEURALLENSE_MODELS in the environment
	ModelsDir string
	// Set via NEURALLENSE_ACCEL in the environment: auto, cuda, coreml or cpu
	Accelerator string
	// Set via NEURALLENSE_ORT_LIB in the environment
	OrtLibrary string
	// Set via NEURALLENSE_STEPS in the environment
	DefaultSteps int
	// Set via NEURALLENSE_MAX_DIM in the environment
	MaxDimension int
	// Set via NEURALLENSE_NOISE in the environment: gaussian or uniform
	NoiseDist string
	// Set via NEURALLENSE_LOAD_BACKOFF in the environment
	LoadBackoff time.Duration
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"NEURALLENSE_DEBUG":        {"NEURALLENSE_DEBUG", Debug, "Show additional debug information (e.g. NEURALLENSE_DEBUG=1)"},
		"NEURALLENSE_TRACE":        {"NEURALLENSE_TRACE", Trace, "Log every sampling step (very verbose)"},
		"NEURALLENSE_HOST":         {"NEURALLENSE_HOST", Host, "Address for the neurallense server (default 127.0.0.1:8632)"},
		"NEURALLENSE_MODELS":       {"NEURALLENSE_MODELS", ModelsDir, "The path to the directory holding encoder.onnx and denoiser.onnx"},
		"NEURALLENSE_ACCEL":        {"NEURALLENSE_ACCEL", Accelerator, "Execution provider preference: auto, cuda, coreml or cpu (default auto)"},
		"NEURALLENSE_ORT_LIB":      {"NEURALLENSE_ORT_LIB", OrtLibrary, "Path to the ONNX Runtime shared library"},
		"NEURALLENSE_STEPS":        {"NEURALLENSE_STEPS", DefaultSteps, "Default diffusion step count (default 25)"},
		"NEURALLENSE_MAX_DIM":      {"NEURALLENSE_MAX_DIM", MaxDimension, "Default maximum working dimension in pixels (default 512)"},
		"NEURALLENSE_NOISE":        {"NEURALLENSE_NOISE", NoiseDist, "Dispersion noise distribution: gaussian or uniform (default gaussian)"},
		"NEURALLENSE_LOAD_BACKOFF": {"NEURALLENSE_LOAD_BACKOFF", LoadBackoff, "Pause between encoder and denoiser load (default 0)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	// default values
	Host = "127.0.0.1:8632"
	Accelerator = "auto"
	DefaultSteps = 25
	MaxDimension = 512
	NoiseDist = "gaussian"

	LoadConfig()
}

func LoadConfig() {
	if debug := clean("NEURALLENSE_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	if trace := clean("NEURALLENSE_TRACE"); trace != "" {
		d, err := strconv.ParseBool(trace)
		if err == nil {
			Trace = d
		}
	}

	if host := clean("NEURALLENSE_HOST"); host != "" {
		Host = host
	}

	ModelsDir = clean("NEURALLENSE_MODELS")
	if ModelsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			ModelsDir = filepath.Join(home, ".neurallense", "models")
		}
	}

	if accel := clean("NEURALLENSE_ACCEL"); accel != "" {
		switch strings.ToLower(accel) {
		case "auto", "cuda", "coreml", "cpu":
			Accelerator = strings.ToLower(accel)
		default:
			slog.Error("invalid setting, ignoring", "NEURALLENSE_ACCEL", accel)
		}
	}

	OrtLibrary = clean("NEURALLENSE_ORT_LIB")

	if steps := clean("NEURALLENSE_STEPS"); steps != "" {
		s, err := strconv.Atoi(steps)
		if err != nil || s < 1 {
			slog.Error("invalid setting, ignoring", "NEURALLENSE_STEPS", steps)
		} else {
			DefaultSteps = s
		}
	}

	if dim := clean("NEURALLENSE_MAX_DIM"); dim != "" {
		d, err := strconv.Atoi(dim)
		if err != nil || d < 8 {
			slog.Error("invalid setting, ignoring", "NEURALLENSE_MAX_DIM", dim)
		} else {
			MaxDimension = d
		}
	}

	if dist := clean("NEURALLENSE_NOISE"); dist != "" {
		switch strings.ToLower(dist) {
		case "gaussian", "uniform":
			NoiseDist = strings.ToLower(dist)
		default:
			slog.Error("invalid setting, ignoring", "NEURALLENSE_NOISE", dist)
		}
	}

	if backoff := clean("NEURALLENSE_LOAD_BACKOFF"); backoff != "" {
		d, err := time.ParseDuration(backoff)
		if err != nil || d < 0 {
			slog.Error("invalid setting, ignoring", "NEURALLENSE_LOAD_BACKOFF", backoff)
		} else {
			LoadBackoff = d
		}
	}
}
