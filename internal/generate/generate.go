// Package generate drafts resume content with an LLM for paying tiers.
package generate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/metrics"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

const instrumentationName = "github.com/fyrsmithlabs/folio/internal/generate"

// MinDescriptionLen is the shortest work experience description accepted.
const MinDescriptionLen = 20

const (
	defaultModel     = "gpt-4o-mini"
	defaultPerMinute = 50
	defaultBurst     = 5
)

// Completer is the part of an LLM client the Service needs.
// llms.Model implementations satisfy it.
type Completer interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewOpenAI returns a Completer for an OpenAI-compatible endpoint.
func NewOpenAI(cfg config.AIConfig) (Completer, error) {
	if !cfg.APIKey.IsSet() {
		return nil, errors.New("ai api key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey.Value()), openai.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return llm, nil
}

// SummaryInput is the resume data a summary is drafted from.
type SummaryInput struct {
	JobTitle       string                  `json:"jobTitle"`
	WorkExperience []resume.WorkExperience `json:"workExperience"`
	Education      []resume.Education      `json:"education"`
	Skills         []string                `json:"skills"`
}

// Service drafts summaries and work experience entries.
type Service struct {
	llm     Completer
	limiter *rate.Limiter
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithRequestsPerMinute caps outbound completion calls.
func WithRequestsPerMinute(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), defaultBurst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service over llm.
func NewService(llm Completer, opts ...Option) *Service {
	s := &Service{
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(float64(defaultPerMinute)/60), defaultBurst),
		logger:  logging.NewNop(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSummary drafts a professional summary.
func (s *Service) GenerateSummary(ctx context.Context, tier subscription.Tier, in SummaryInput) (string, error) {
	if !subscription.CanUseAITools(tier) {
		s.metrics.QuotaDenialsTotal.WithLabelValues("ai_tools").Inc()
		return "", apperr.Quota("generate.summary", "AI tools are not available on the current tier")
	}
	return s.complete(ctx, "summary", summarySystemPrompt, summaryUserPrompt(in))
}

// GenerateWorkExperience drafts a work experience entry from a free-form
// description.
func (s *Service) GenerateWorkExperience(ctx context.Context, tier subscription.Tier, description string) (resume.WorkExperience, error) {
	if !subscription.CanUseAITools(tier) {
		s.metrics.QuotaDenialsTotal.WithLabelValues("ai_tools").Inc()
		return resume.WorkExperience{}, apperr.Quota("generate.work_experience", "AI tools are not available on the current tier")
	}
	description = strings.TrimSpace(description)
	if len([]rune(description)) < MinDescriptionLen {
		return resume.WorkExperience{}, apperr.Validation("generate.work_experience", apperr.Issue{
			Field:   "description",
			Message: fmt.Sprintf("must be at least %d characters", MinDescriptionLen),
		})
	}

	out, err := s.complete(ctx, "work_experience", workExperienceSystemPrompt,
		"Please provide a work experience entry from this description:\n"+description)
	if err != nil {
		return resume.WorkExperience{}, err
	}
	return ParseWorkExperience(out), nil
}

func (s *Service) complete(ctx context.Context, kind, system, user string) (text string, err error) {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "generate."+kind)
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.AIRequestsTotal.WithLabelValues(kind, metrics.Outcome(err)).Inc()
		s.metrics.AIRequestSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	op := "generate." + kind
	if err := s.limiter.Wait(ctx); err != nil {
		return "", apperr.Upstream(op, fmt.Errorf("rate limiter: %w", err))
	}

	resp, err := s.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	})
	if err != nil {
		s.logger.Warn(ctx, "completion failed", zap.String("kind", kind), zap.Error(err))
		return "", apperr.Upstream(op, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", apperr.Upstream(op, errors.New("empty completion"))
	}

	text = strings.TrimSpace(resp.Choices[0].Content)
	span.SetAttributes(attribute.Int("generate.response_len", len(text)))
	return text, nil
}

var (
	jobTitleRe    = regexp.MustCompile(`(?m)^\s*Job title:[ \t]*(.*)$`)
	companyRe     = regexp.MustCompile(`(?m)^\s*Company:[ \t]*(.*)$`)
	startDateRe   = regexp.MustCompile(`Start date:[ \t]*(\d{4}-\d{2}-\d{2})`)
	endDateRe     = regexp.MustCompile(`End date:[ \t]*(\d{4}-\d{2}-\d{2})`)
	descriptionRe = regexp.MustCompile(`(?s)Description:(.*)`)
)

// ParseWorkExperience reads the labelled completion format. Missing labels
// leave fields empty; dates are kept only in YYYY-MM-DD form.
func ParseWorkExperience(text string) resume.WorkExperience {
	match := func(re *regexp.Regexp) string {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return resume.WorkExperience{
		Position:    match(jobTitleRe),
		Company:     match(companyRe),
		StartDate:   match(startDateRe),
		EndDate:     match(endDateRe),
		Description: match(descriptionRe),
	}
}
