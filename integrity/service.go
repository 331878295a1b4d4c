package integrity

import (
	"context"
	"log/slog"
	"strings"

	milow "github.com/milow-app/milow-functions"
	"github.com/milow-app/milow-functions/audit"
	"github.com/milow-app/milow-functions/metrics"
)

// Report is the body returned by the verification endpoint.
type Report struct {
	Valid   bool    `json:"valid"`
	Message string  `json:"message"`
	Verdict Summary `json:"verdict"`
}

// Summary flattens the verdict for clients. Missing values read "unknown".
type Summary struct {
	DeviceIntegrity string `json:"deviceIntegrity"`
	AppIntegrity    string `json:"appIntegrity"`
	Licensing       string `json:"licensing"`
}

// Service decodes and validates integrity tokens for one package.
type Service struct {
	decoder     milow.IntegrityDecoder
	packageName string
	logger      *slog.Logger
	metrics     *metrics.Metrics
	audit       *audit.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records verdict outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit records each decision as an audit event.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// NewService creates a Service for packageName.
func NewService(decoder milow.IntegrityDecoder, packageName string, opts ...Option) *Service {
	s := &Service{
		decoder:     decoder,
		packageName: packageName,
		logger:      slog.Default(),
		metrics:     metrics.New(false),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// PackageName returns the package tokens are decoded for.
func (s *Service) PackageName() string { return s.packageName }

// Verify decodes integrityToken and validates the verdict. Errors are
// returned only when the verdict could not be obtained; a rejected verdict
// is a Report with Valid false.
func (s *Service) Verify(ctx context.Context, integrityToken string) (*Report, error) {
	v, err := s.decoder.Decode(ctx, s.packageName, integrityToken)
	if err != nil {
		return nil, err
	}

	res := Validate(v, s.packageName, s.logger)
	s.metrics.RecordIntegrityVerdict(res.Valid)

	r := &Report{
		Valid:   res.Valid,
		Message: res.Message,
		Verdict: Summary{
			DeviceIntegrity: orUnknown(strings.Join(v.DeviceLabels(), ", ")),
			AppIntegrity:    orUnknown(v.AppRecognition()),
			Licensing:       orUnknown(v.Licensing()),
		},
	}
	if s.audit != nil {
		s.audit.LogIntegrity(ctx, r.Valid, r.Message, r.Verdict.DeviceIntegrity)
	}
	return r, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
