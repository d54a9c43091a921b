package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/billing"
	"github.com/fyrsmithlabs/folio/internal/blob"
	"github.com/fyrsmithlabs/folio/internal/generate"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

const defaultPageSize = 20

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SaveResponse is the response body for PUT /api/v1/resumes.
type SaveResponse struct {
	ID       string `json:"id"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// SummaryResponse is the response body for POST /api/v1/ai/summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

// WorkExperienceRequest is the request body for POST /api/v1/ai/work-experience.
type WorkExperienceRequest struct {
	Description string `json:"description"`
}

// CheckoutRequest is the request body for POST /api/v1/billing/checkout.
type CheckoutRequest struct {
	PriceID string `json:"priceId"`
}

// RedirectResponse carries a provider-hosted URL to send the user to.
type RedirectResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListResumes(c echo.Context) error {
	limit, offset := defaultPageSize, 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).Int("offset", &offset).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit and offset must be integers")
	}
	res, err := s.deps.Resumes.List(c.Request().Context(), auth.UserID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetResume(c echo.Context) error {
	rec, err := s.deps.Resumes.Get(c.Request().Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleSaveResume(c echo.Context) error {
	var snap resume.Snapshot
	if err := c.Bind(&snap); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid resume payload", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	rec, err := s.deps.Resumes.Save(ctx, auth.UserID(c), subscription.TierFromContext(ctx), snap)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SaveResponse{ID: rec.ID, PhotoURL: rec.PhotoURL})
}

func (s *Server) handleDeleteResume(c echo.Context) error {
	if err := s.deps.Resumes.Delete(c.Request().Context(), auth.UserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGenerateSummary(c echo.Context) error {
	if s.deps.Generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI generation is not configured")
	}
	var in generate.SummaryInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	out, err := s.deps.Generator.GenerateSummary(ctx, subscription.TierFromContext(ctx), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SummaryResponse{Summary: out})
}

func (s *Server) handleGenerateWorkExperience(c echo.Context) error {
	if s.deps.Generator == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "AI generation is not configured")
	}
	var req WorkExperienceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	out, err := s.deps.Generator.GenerateWorkExperience(ctx, subscription.TierFromContext(ctx), req.Description)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleBillingOverview(c echo.Context) error {
	ov, err := s.deps.Billing.Overview(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ov)
}

func (s *Server) handleCheckout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	id, _ := auth.FromContext(ctx)
	url, err := s.deps.Billing.Checkout(ctx, id.UserID, id.Email, req.PriceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RedirectResponse{URL: url})
}

func (s *Server) handlePortal(c echo.Context) error {
	url, err := s.deps.Billing.Portal(c.Request().Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RedirectResponse{URL: url})
}

func (s *Server) handleStripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()
	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing signature")
	}

	body := http.MaxBytesReader(c.Response(), c.Request().Body, MaxWebhookBody)
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable payload")
	}

	if err := s.deps.Billing.HandleWebhook(ctx, payload, signature); err != nil {
		if errors.Is(err, billing.ErrSignature) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
		}
		return err
	}
	return c.String(http.StatusOK, "Event received")
}

func (s *Server) handlePhoto(c echo.Context) error {
	if s.deps.Photos == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	key := c.Param("*")
	if key == "" || strings.Contains(key, "..") {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}

	r, err := s.deps.Photos.Reader(c.Request().Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return apperr.Upstream("http.photo", err)
	}
	defer r.Close()

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.Stream(http.StatusOK, r.ContentType(), r)
}
