package resume

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/events"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/metrics"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

const instrumentationName = "github.com/fyrsmithlabs/folio/internal/resume"

// PhotoPrefix is the blob key prefix for resume photos.
const PhotoPrefix = "resume_photo/"

// Repository stores resume records. Lookups of missing or foreign records
// return an error matching apperr.ErrNotFound.
type Repository interface {
	CountResumes(ctx context.Context, userID string) (int, error)
	GetResume(ctx context.Context, userID, id string) (*Record, error)
	ListResumes(ctx context.Context, userID string, limit, offset int) ([]*Record, int, error)
	// CreateResume inserts rec with its work experience and education.
	CreateResume(ctx context.Context, rec *Record) error
	// UpdateResume rewrites rec and replaces all of its work experience and
	// education rows in one transaction.
	UpdateResume(ctx context.Context, rec *Record) error
	DeleteResume(ctx context.Context, userID, id string) error
}

// PhotoStore uploads and removes photo blobs.
type PhotoStore interface {
	// Upload stores data under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Delete removes the blob behind url. Missing blobs are not an error.
	Delete(ctx context.Context, url string) error
}

// Publisher emits domain events. Failures are logged, never returned.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// Event subjects.
const (
	SubjectSaved   = "resume.saved"
	SubjectDeleted = "resume.deleted"
)

// Event is the payload of resume domain events.
type Event struct {
	ResumeID string    `json:"resumeId"`
	UserID   string    `json:"userId"`
	Created  bool      `json:"created,omitempty"`
	At       time.Time `json:"at"`
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets the domain event publisher.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// Service persists resume drafts on behalf of authenticated users.
type Service struct {
	repo      Repository
	photos    PhotoStore
	publisher Publisher
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewService creates a Service.
func NewService(repo Repository, photos PhotoStore, opts ...ServiceOption) *Service {
	s := &Service{
		repo:    repo,
		photos:  photos,
		clock:   clock.New(),
		logger:  logging.NewNop(),
		metrics: metrics.New(),
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save creates or updates the resume described by snap for userID.
//
// A snapshot without ID creates a resume if tier allows another one; the
// quota is checked before any upload. A snapshot with ID must name a resume
// owned by userID. Color and border changes require a tier with
// customizations. A pending photo replaces the stored one, PhotoNone removes
// it and PhotoRemote keeps it.
func (s *Service) Save(ctx context.Context, userID string, tier subscription.Tier, snap Snapshot) (*Record, error) {
	const op = "resume.save"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	rec, err := s.save(ctx, userID, tier, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("resume_id", rec.ID))
	return rec, nil
}

func (s *Service) save(ctx context.Context, userID string, tier subscription.Tier, snap Snapshot) (*Record, error) {
	const op = "resume.save"
	if userID == "" {
		return nil, apperr.Unauthorized(op)
	}

	snap = snap.Sanitize()
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	var existing *Record
	if snap.ID == "" {
		count, err := s.repo.CountResumes(ctx, userID)
		if err != nil {
			return nil, apperr.Upstream(op, err)
		}
		if !subscription.CanCreateResume(tier, count) {
			s.metrics.QuotaDenialsTotal.WithLabelValues("resume_count").Inc()
			return nil, apperr.Quota(op, "maximum resume count reached for this subscription level")
		}
	} else {
		rec, err := s.repo.GetResume(ctx, userID, snap.ID)
		if err != nil {
			return nil, classify(op, err)
		}
		existing = rec
	}

	prevColor, prevBorder := "", DefaultBorderStyle
	if existing != nil {
		prevColor, prevBorder = existing.ColorHex, existing.BorderStyle.OrDefault()
	}
	customized := colorOrDefault(snap.ColorHex) != colorOrDefault(prevColor) ||
		snap.BorderStyle.OrDefault() != prevBorder
	if customized && !subscription.CanUseCustomizations(tier) {
		s.metrics.QuotaDenialsTotal.WithLabelValues("customization").Inc()
		return nil, apperr.Quota(op, "customizations are not available for this subscription level")
	}

	photoURL := ""
	if existing != nil {
		photoURL = existing.PhotoURL
	}
	photoURL, err := s.applyPhoto(ctx, photoURL, snap.Photo)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	rec := &Record{ID: snap.ID, UserID: userID, CreatedAt: now}
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
	}
	fill(rec, snap)
	rec.PhotoURL = photoURL
	rec.UpdatedAt = now

	created := existing == nil
	if created {
		rec.ID = uuid.NewString()
		err = s.repo.CreateResume(ctx, rec)
	} else {
		err = s.repo.UpdateResume(ctx, rec)
	}
	if err != nil {
		return nil, classify(op, err)
	}

	opLabel := "update"
	if created {
		opLabel = "create"
	}
	s.metrics.ResumeSavesTotal.WithLabelValues(opLabel).Inc()

	ctx = logging.WithResumeID(ctx, rec.ID)
	s.logger.Info(ctx, "resume saved",
		zap.Bool("created", created),
		zap.Int("work_experience", len(rec.WorkExperience)),
		zap.Int("education", len(rec.Education)),
		zap.String("photo", snap.Photo.Kind.String()),
	)
	s.publish(ctx, SubjectSaved, Event{ResumeID: rec.ID, UserID: userID, Created: created, At: now})

	return rec, nil
}

// applyPhoto performs the blob side effect of p and returns the new stored URL.
func (s *Service) applyPhoto(ctx context.Context, current string, p Photo) (string, error) {
	const op = "resume.photo"
	switch p.Kind {
	case PhotoPending:
		if current != "" {
			if err := s.photos.Delete(ctx, current); err != nil {
				return "", apperr.Upstream(op, err)
			}
		}
		key, err := PhotoKey(p.Descriptor.Name)
		if err != nil {
			return "", apperr.Upstream(op, err)
		}
		url, err := s.photos.Upload(ctx, key, p.Descriptor.ContentType, p.Data)
		if err != nil {
			return "", apperr.Upstream(op, err)
		}
		s.metrics.PhotoBytesTotal.Add(float64(len(p.Data)))
		return url, nil
	case PhotoNone:
		if current != "" {
			if err := s.photos.Delete(ctx, current); err != nil {
				return "", apperr.Upstream(op, err)
			}
		}
		return "", nil
	default:
		return current, nil
	}
}

// Get returns the resume id owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Record, error) {
	const op = "resume.get"
	if userID == "" {
		return nil, apperr.Unauthorized(op)
	}
	rec, err := s.repo.GetResume(ctx, userID, id)
	if err != nil {
		return nil, classify(op, err)
	}
	return rec, nil
}

// List returns a page of userID's resumes, most recently updated first,
// with the total count.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) (*ListResult, error) {
	const op = "resume.list"
	if userID == "" {
		return nil, apperr.Unauthorized(op)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	recs, total, err := s.repo.ListResumes(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Upstream(op, err)
	}
	return &ListResult{Resumes: recs, TotalCount: total}, nil
}

// Count returns how many resumes userID owns.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountResumes(ctx, userID)
	if err != nil {
		return 0, apperr.Upstream("resume.count", err)
	}
	return n, nil
}

// Delete removes the photo blob of resume id, then the resume itself.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	const op = "resume.delete"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	if userID == "" {
		return apperr.Unauthorized(op)
	}
	rec, err := s.repo.GetResume(ctx, userID, id)
	if err != nil {
		span.RecordError(err)
		return classify(op, err)
	}
	if rec.PhotoURL != "" {
		if err := s.photos.Delete(ctx, rec.PhotoURL); err != nil {
			span.RecordError(err)
			return apperr.Upstream(op, err)
		}
	}
	if err := s.repo.DeleteResume(ctx, userID, id); err != nil {
		span.RecordError(err)
		return classify(op, err)
	}

	s.metrics.ResumeDeletesTotal.Inc()
	ctx = logging.WithResumeID(ctx, id)
	s.logger.Info(ctx, "resume deleted")
	s.publish(ctx, SubjectDeleted, Event{ResumeID: id, UserID: userID, At: s.clock.Now().UTC()})
	return nil
}

func (s *Service) publish(ctx context.Context, subject string, ev Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.UserSubject(ev.UserID, subject), ev); err != nil {
		s.logger.Warn(ctx, "failed to publish resume event", zap.String("subject", subject), zap.Error(err))
	}
}

// PhotoKey returns a fresh blob key for a photo named name, keeping its
// extension: resume_photo/<24 random bytes, base64url><ext>.
func PhotoKey(name string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate photo name: %w", err)
	}
	return PhotoPrefix + base64.RawURLEncoding.EncodeToString(buf) + strings.ToLower(filepath.Ext(name)), nil
}

// classify keeps already-classified errors and marks the rest upstream.
func classify(op string, err error) error {
	if apperr.KindOf(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Upstream(op, err)
}

func colorOrDefault(c string) string {
	if c == "" {
		return DefaultColorHex
	}
	return strings.ToLower(c)
}

func fill(rec *Record, s Snapshot) {
	rec.Title = s.Title
	rec.Description = s.Description
	rec.FirstName = s.FirstName
	rec.LastName = s.LastName
	rec.JobTitle = s.JobTitle
	rec.City = s.City
	rec.Country = s.Country
	rec.Phone = s.Phone
	rec.Email = s.Email
	rec.WorkExperience = cloneSlice(s.WorkExperience)
	rec.Education = cloneSlice(s.Education)
	rec.Skills = cloneSlice(s.Skills)
	rec.Summary = s.Summary
	rec.ColorHex = s.ColorHex
	rec.BorderStyle = s.BorderStyle.OrDefault()
}
