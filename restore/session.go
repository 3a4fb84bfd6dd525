// Package restore owns the model lifecycle and the caller-facing Restore
// operation that drives the reverse-diffusion engine.
package restore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/panam-dodia/NeuralLense/backend"
	"github.com/panam-dodia/NeuralLense/diffusion"
	"github.com/panam-dodia/NeuralLense/discover"
	"github.com/panam-dodia/NeuralLense/envconfig"
	"github.com/panam-dodia/NeuralLense/format"
)

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// denoiserHeadroom is the minimum free memory required before attempting
// the second-phase denoiser load when the platform can report it.
const denoiserHeadroom = 256 * format.MebiByte

// Config parameterizes a restoration session. Zero values fall back to the
// environment-configured defaults.
type Config struct {
	// ScheduleSteps is T, the length of the noise schedule.
	ScheduleSteps int
	// MaxSigma is the stationary noise level of the forward SDE.
	MaxSigma float64
	// Eps is the residual noise ratio the schedule decays to.
	Eps float64

	EncoderPath  string
	DenoiserPath string

	// NoiseDist selects the dispersion noise distribution.
	NoiseDist diffusion.Dist

	// LoadBackoff pauses between the encoder and denoiser loads to let
	// the platform reclaim memory. Tunable, zero by default.
	LoadBackoff time.Duration
}

// DefaultConfig returns the engine defaults, with model paths resolved
// under the configured models directory.
func DefaultConfig() Config {
	return Config{
		ScheduleSteps: 100,
		MaxSigma:      50.0 / 255,
		Eps:           0.005,
		EncoderPath:   filepath.Join(envconfig.ModelsDir, "encoder.onnx"),
		DenoiserPath:  filepath.Join(envconfig.ModelsDir, "denoiser.onnx"),
		NoiseDist:     diffusion.ParseDist(envconfig.NoiseDist),
		LoadBackoff:   envconfig.LoadBackoff,
	}
}

// Session owns the two model handles and the noise schedule. A session
// serves one restoration at a time; overlapping calls are rejected with
// ErrBusy.
type Session struct {
	runtime backend.Runtime
	config  Config

	flight *semaphore.Weighted

	// state is atomic so status queries never wait behind a restoration
	// holding flight. flight still guards the fields below it.
	state    atomic.Int32
	schedule *diffusion.Schedule
	encoder  *encoder
	denoiser *denoiser
}

func NewSession(runtime backend.Runtime, config Config) *Session {
	return &Session{
		runtime: runtime,
		config:  config,
		flight:  semaphore.NewWeighted(1),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Initialize builds the schedule and loads both models. Configuration
// errors are rejected before any load. A load failure releases whatever was
// acquired and leaves the session in StateFailed; the caller may retry
// after freeing memory.
func (s *Session) Initialize(ctx context.Context) error {
	if err := s.flight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.flight.Release(1)

	switch s.State() {
	case StateReady:
		return nil
	case StateReleased:
		return ErrReleased
	}

	schedule, err := diffusion.NewSchedule(s.config.ScheduleSteps, s.config.MaxSigma, s.config.Eps)
	if err != nil {
		return err
	}

	s.setState(StateLoading)

	start := time.Now()
	enc, err := s.runtime.LoadSession(s.config.EncoderPath)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("load encoder: %w", err)
	}
	slog.Debug("encoder loaded", "path", s.config.EncoderPath, "duration", time.Since(start))

	// Two-phase load: the denoiser is the larger model, so check
	// headroom and give the platform a moment to reclaim memory first.
	if mem, err := discover.SystemMemory(); err == nil {
		slog.Debug("memory before denoiser load", "mem", mem)
		if mem.FreeMemory > 0 && mem.FreeMemory < denoiserHeadroom {
			enc.Close()
			s.setState(StateFailed)
			return fmt.Errorf("load denoiser: %w: %s free, need %s",
				backend.ErrOutOfMemory, format.HumanBytes2(mem.FreeMemory), format.HumanBytes2(denoiserHeadroom))
		}
	}
	if s.config.LoadBackoff > 0 {
		select {
		case <-time.After(s.config.LoadBackoff):
		case <-ctx.Done():
			enc.Close()
			s.setState(StateFailed)
			return ctx.Err()
		}
	}

	start = time.Now()
	den, err := s.runtime.LoadSession(s.config.DenoiserPath)
	if err != nil {
		enc.Close()
		s.setState(StateFailed)
		return fmt.Errorf("load denoiser: %w", err)
	}
	slog.Debug("denoiser loaded", "path", s.config.DenoiserPath, "duration", time.Since(start))

	s.schedule = schedule
	s.encoder = &encoder{session: enc}
	s.denoiser = &denoiser{session: den}
	s.setState(StateReady)

	slog.Info("restoration session ready",
		"provider", s.runtime.Provider(),
		"schedule_steps", schedule.Steps,
		"noise", s.config.NoiseDist)
	return nil
}

// Release closes both model handles. It is idempotent and safe to call
// from any state.
func (s *Session) Release() {
	if err := s.flight.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer s.flight.Release(1)

	if s.State() == StateReleased {
		return
	}

	if s.encoder != nil {
		s.encoder.session.Close()
		s.encoder = nil
	}
	if s.denoiser != nil {
		s.denoiser.session.Close()
		s.denoiser = nil
	}
	s.schedule = nil
	s.setState(StateReleased)
}
