package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages [][]llms.MessageContent
}

func (f *fakeLLM) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgs)
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func text(t *testing.T, m llms.MessageContent) string {
	t.Helper()
	require.Len(t, m.Parts, 1)
	part, ok := m.Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestGenerateSummary(t *testing.T) {
	llm := &fakeLLM{reply: "  Seasoned engineer.  "}
	svc := NewService(llm, WithRequestsPerMinute(600))

	got, err := svc.GenerateSummary(context.Background(), subscription.Pro, SummaryInput{
		JobTitle: "Engineer",
		WorkExperience: []resume.WorkExperience{
			{Position: "Backend Engineer", Company: "Acme", StartDate: "2020-01-01"},
		},
		Education: []resume.Education{{Degree: "BSc", School: "MIT"}},
		Skills:    []string{"Go", "SQL"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Seasoned engineer.", got)

	require.Equal(t, 1, llm.calls())
	msgs := llm.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)

	prompt := text(t, msgs[1])
	assert.Contains(t, prompt, "Job Title: Engineer")
	assert.Contains(t, prompt, "Position: Backend Engineer at Acme from 2020-01-01 to Present")
	assert.Contains(t, prompt, "Degree: BSc at MIT from N/A to N/A")
	assert.Contains(t, prompt, "Skills: Go, SQL")
}

func TestGenerate_RequiresPaidTier(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	svc := NewService(llm)

	_, err := svc.GenerateSummary(context.Background(), subscription.Free, SummaryInput{})
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	_, err = svc.GenerateWorkExperience(context.Background(), subscription.Free, strings.Repeat("x", 40))
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	assert.Zero(t, llm.calls())
}

func TestGenerateWorkExperience(t *testing.T) {
	llm := &fakeLLM{reply: `Job title: Senior Backend Engineer
Company: Acme Corp
Start date: 2019-03-01
End date: not provided
Description:
- Built the billing platform
- Led a team of four`}
	svc := NewService(llm, WithRequestsPerMinute(600))

	got, err := svc.GenerateWorkExperience(context.Background(), subscription.ProPlus,
		"  I built billing at Acme from March 2019 and led a small team  ")
	require.NoError(t, err)
	assert.Equal(t, resume.WorkExperience{
		Position:    "Senior Backend Engineer",
		Company:     "Acme Corp",
		StartDate:   "2019-03-01",
		Description: "- Built the billing platform\n- Led a team of four",
	}, got)
	assert.Contains(t, text(t, llm.messages[0][1]), "I built billing at Acme from March 2019")
}

func TestGenerateWorkExperience_ShortDescription(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	svc := NewService(llm)

	_, err := svc.GenerateWorkExperience(context.Background(), subscription.Pro, "   too short     ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "description", apperr.IssuesOf(err)[0].Field)
	assert.Zero(t, llm.calls())
}

func TestGenerate_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"error", &fakeLLM{err: errors.New("503 service unavailable")}},
		{"empty", &fakeLLM{reply: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.llm, WithRequestsPerMinute(600))
			_, err := svc.GenerateSummary(context.Background(), subscription.Pro, SummaryInput{})
			assert.ErrorIs(t, err, apperr.ErrUpstream)
		})
	}
}

func TestGenerate_CancelledWhileRateLimited(t *testing.T) {
	svc := NewService(&fakeLLM{reply: "x"}, WithRequestsPerMinute(1))
	svc.limiter.SetBurst(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GenerateSummary(ctx, subscription.Pro, SummaryInput{})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestParseWorkExperience_MissingLabels(t *testing.T) {
	got := ParseWorkExperience("Company: Acme\nsomething else")
	assert.Equal(t, resume.WorkExperience{Company: "Acme"}, got)
}

func TestNewOpenAI(t *testing.T) {
	_, err := NewOpenAI(config.AIConfig{})
	assert.Error(t, err)

	llm, err := NewOpenAI(config.AIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)
	assert.NotNil(t, llm)
}
