package cmd

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/panam-dodia/NeuralLense/backend/ort"
	"github.com/panam-dodia/NeuralLense/envconfig"
	"github.com/panam-dodia/NeuralLense/logutil"
	"github.com/panam-dodia/NeuralLense/progress"
	"github.com/panam-dodia/NeuralLense/restore"
	"github.com/panam-dodia/NeuralLense/server"
	"github.com/panam-dodia/NeuralLense/version"
)

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:   "neurallense",
		Short: "On-device photo restoration",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			level := slog.LevelInfo
			if envconfig.Debug {
				level = slog.LevelDebug
			}
			if envconfig.Trace {
				level = logutil.LevelTrace
			}
			slog.SetDefault(logutil.NewLogger(os.Stderr, level))
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore IMAGE",
		Short: "Restore a degraded photograph",
		Args:  cobra.ExactArgs(1),
		RunE:  RestoreHandler,
	}
	restoreCmd.Flags().StringP("output", "o", "", "Output path (default INPUT_restored.png)")
	restoreCmd.Flags().Int("steps", 0, "Diffusion step count")
	restoreCmd.Flags().Int("max-dim", 0, "Maximum working dimension in pixels")
	restoreCmd.Flags().Uint64("seed", 0, "Random seed for reproducible output")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the restoration server",
		Args:    cobra.NoArgs,
		RunE:    ServeHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	}

	rootCmd.AddCommand(restoreCmd, serveCmd, versionCmd)
	return rootCmd
}

func newEngine(cmd *cobra.Command) (*restore.Session, func(), error) {
	runtime, err := ort.NewRuntime(ort.Options{
		LibraryPath: envconfig.OrtLibrary,
		Accelerator: envconfig.Accelerator,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize runtime: %w", err)
	}

	session := restore.NewSession(runtime, restore.DefaultConfig())
	if err := session.Initialize(cmd.Context()); err != nil {
		runtime.Close()
		return nil, nil, err
	}

	cleanup := func() {
		session.Release()
		runtime.Close()
	}
	return session, cleanup, nil
}

func RestoreHandler(cmd *cobra.Command, args []string) error {
	input := args[0]

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", input, err)
	}

	steps, _ := cmd.Flags().GetInt("steps")
	if steps == 0 {
		steps = envconfig.DefaultSteps
	}
	maxDim, _ := cmd.Flags().GetInt("max-dim")
	if maxDim == 0 {
		maxDim = envconfig.MaxDimension
	}
	seed, _ := cmd.Flags().GetUint64("seed")

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + "_restored.png"
	}

	p := progress.NewProgress(os.Stderr)
	defer p.Stop()

	spinner := progress.NewSpinner("loading models")
	p.Add(spinner)

	engine, cleanup, err := newEngine(cmd)
	if err != nil {
		p.Stop()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w\nplace encoder.onnx and denoiser.onnx under %s or set NEURALLENSE_MODELS", err, envconfig.ModelsDir)
		}
		return err
	}
	defer cleanup()
	spinner.Stop()

	bar := progress.NewStepBar("restoring", steps)
	p.Add(bar)

	out, err := engine.Restore(cmd.Context(), restore.Request{
		Image:        img,
		Steps:        steps,
		MaxDimension: maxDim,
		Seed:         seed,
		Progress: func(completed, total int, _ string) {
			bar.Set(completed)
		},
	})
	p.Stop()
	if err != nil {
		return err
	}

	w, err := os.Create(output)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := png.Encode(w, out); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "wrote", output)
	return nil
}

func ServeHandler(cmd *cobra.Command, args []string) error {
	if envconfig.Debug {
		for k, v := range envconfig.Values() {
			slog.Debug("config", k, v)
		}
	}

	engine, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ln, err := net.Listen("tcp", envconfig.Host)
	if err != nil {
		return err
	}

	return server.Serve(ln, engine)
}
