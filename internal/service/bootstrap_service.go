package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/cms-api/pkg/config"
)

// HealthProbe checks one external dependency.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// ProbeResult is the outcome of a single probe.
type ProbeResult struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// BootstrapReport summarises a startup run.
type BootstrapReport struct {
	StartedAt time.Time     `json:"started_at"`
	Probes    []ProbeResult `json:"probes"`
}

// BootstrapService performs startup checks before the server accepts traffic.
type BootstrapService struct {
	cfg    *config.Config
	probes []HealthProbe
	logger *zap.Logger
	now    func() time.Time
}

// NewBootstrapService constructs a BootstrapService.
func NewBootstrapService(cfg *config.Config, logger *zap.Logger, probes ...HealthProbe) *BootstrapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BootstrapService{cfg: cfg, probes: probes, logger: logger, now: time.Now}
}

// HTTPHealthProbe returns a probe issuing GET baseURL/health. Any 2xx is healthy.
func HTTPHealthProbe(name, baseURL string, client *http.Client) HealthProbe {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/health"
	return HealthProbe{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
			}
			return nil
		},
	}
}

// Run validates configuration, probes external services in parallel and logs
// the application banner. Only a configuration problem is returned as an
// error; unhealthy dependencies are logged and reported.
func (s *BootstrapService) Run(ctx context.Context) (*BootstrapReport, error) {
	if s.cfg == nil {
		return nil, &config.ConfigurationError{Missing: []string{"configuration"}}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	report := &BootstrapReport{StartedAt: s.now().UTC()}
	report.Probes = s.checkExternalServices(ctx)

	s.logger.Info("application started",
		zap.String("env", s.cfg.Env),
		zap.Int("port", s.cfg.Port),
		zap.String("api_prefix", s.cfg.APIPrefix),
		zap.Time("started_at", report.StartedAt),
	)
	return report, nil
}

func (s *BootstrapService) checkExternalServices(ctx context.Context) []ProbeResult {
	timeout := s.cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	results := make([]ProbeResult, len(s.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range s.probes {
		i, probe := i, probe
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			started := time.Now()
			err := probe.Check(probeCtx)
			result := ProbeResult{Name: probe.Name, Healthy: err == nil, Latency: time.Since(started)}
			if err != nil {
				result.Error = err.Error()
				s.logger.Warn("external service unreachable", zap.String("service", probe.Name), zap.Error(err))
			} else {
				s.logger.Info("external service healthy", zap.String("service", probe.Name), zap.Duration("latency", result.Latency))
			}

			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results
}
