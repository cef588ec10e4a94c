package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/accrete/internal/config"
	"github.com/dyluth/accrete/internal/growth"
	"github.com/dyluth/accrete/internal/logging"
	"github.com/dyluth/accrete/internal/ops"
	"github.com/dyluth/accrete/internal/orchestrator"
	"github.com/dyluth/accrete/internal/printer"
	"github.com/dyluth/accrete/internal/tools"
	"github.com/dyluth/accrete/pkg/events"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runFlags are shared by the commands that start a growth run.
type runFlags struct {
	orientations string
	maxSeeds     int
	dir          string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.orientations, "orientations", "", "Orientations per seed: 'auto' or a count (overrides run.orientations)")
	cmd.Flags().IntVar(&f.maxSeeds, "max-seeds", 0, "Structures kept per step (overrides run.maximum_number_of_seeds)")
	cmd.Flags().StringVarP(&f.dir, "dir", "d", "", "Run directory (overrides run.output_dir)")
}

// apply copies explicitly set flags over the loaded configuration.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("orientations") {
		o, err := config.ParseOrientations(f.orientations)
		if err != nil {
			return err
		}
		if !o.Auto && o.Count < 1 {
			return fmt.Errorf("--orientations must be 'auto' or >= 1")
		}
		cfg.Run.Orientations = o
	}
	if cmd.Flags().Changed("max-seeds") {
		if f.maxSeeds < 1 {
			return fmt.Errorf("--max-seeds must be >= 1")
		}
		cfg.Run.MaximumSeeds = f.maxSeeds
	}
	if cmd.Flags().Changed("dir") {
		cfg.Run.OutputDir = f.dir
	}
	return nil
}

// session owns everything a growth command needs for one run.
type session struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *ops.Metrics
	events  *events.Client
	server  *ops.Server
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"failed to load configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{
				"Create accrete.yml with the optimiser, orienter and clusterer commands",
				"Point at another file:\n  accrete --config path/to/accrete.yml ...",
			},
		)
	}
	return cfg, nil
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	s := &session{
		cfg:     cfg,
		log:     logging.New(level),
		metrics: ops.NewMetrics(),
	}

	if cfg.Events.RedisURL != "" {
		client, err := events.NewClientFromURL(cfg.Events.RedisURL, cfg.Run.Name)
		if err != nil {
			return nil, printer.Error("invalid events.redis_url", err.Error(), []string{"Use a URL such as redis://localhost:6379/0"})
		}
		if err := client.Ping(ctx); err != nil {
			s.log.Warn().Err(err).Msg("event bus unreachable, progress events will be dropped")
		}
		s.events = client
	}

	if cfg.Ops.Addr != "" {
		var pinger ops.Pinger
		if s.events != nil {
			pinger = s.events
		}
		s.server = ops.NewServer(cfg.Ops.Addr, s.metrics, pinger, s.log)
		if err := s.server.Start(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to start ops server: %w", err)
		}
	}

	s.log.Info().Str("run", cfg.Run.Name).Str("config", configPath).Msg("session ready")
	return s, nil
}

// Close stops the ops server and the event bus connection.
func (s *session) Close() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.Warn().Err(err).Msg("ops server shutdown")
		}
	}
	if s.events != nil {
		s.events.Close()
	}
}

func (s *session) runner(tool config.ToolConfig) *tools.Runner {
	return tools.NewRunner(resolveCommand(tool.Command), tool.Timeout, s.log.With().Str("tool", filepath.Base(tool.Command[0])).Logger())
}

func (s *session) engine() *growth.Engine {
	return growth.NewEngine(
		tools.NewOptimiser(s.runner(s.cfg.Optimiser)),
		tools.NewOrienter(s.runner(s.cfg.Orienter)),
		tools.NewClusterer(s.runner(s.cfg.Clusterer)),
		growth.WithParams(s.cfg.QC),
		growth.WithMaximumSeeds(s.cfg.Run.MaximumSeeds),
		growth.WithMetrics(s.metrics),
		growth.WithLogger(s.log),
	)
}

func (s *session) orchestrator() *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithOrientations(s.cfg.Run.Orientations),
		orchestrator.WithWindow(s.cfg.Run.FirstPathway, s.cfg.Run.NumberOfPathways),
		orchestrator.WithRunName(s.cfg.Run.Name),
		orchestrator.WithMetrics(s.metrics),
		orchestrator.WithLogger(s.log),
	}
	if s.events != nil {
		opts = append(opts, orchestrator.WithPublisher(s.events))
	}
	return orchestrator.New(s.engine(), opts...)
}

// resolveCommand makes a relative program path absolute. Tools run inside the step
// directories, so "./optimise.sh" must be anchored to where accrete was started.
func resolveCommand(command []string) []string {
	if len(command) == 0 {
		return command
	}
	out := append([]string(nil), command...)
	if !filepath.IsAbs(out[0]) && strings.ContainsRune(out[0], filepath.Separator) {
		if abs, err := filepath.Abs(out[0]); err == nil {
			out[0] = abs
		}
	}
	return out
}

// parseSizes parses a comma-separated list of unit counts such as "2,1".
func parseSizes(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("no sizes given")
	}
	parts := strings.Split(raw, ",")
	sizes := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", p, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("size %d must be >= 0", n)
		}
		sizes[i] = n
	}
	return sizes, nil
}
