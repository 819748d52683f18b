// Package service implements the mint admission engine: it decides whether a
// wallet may mint now, reserves the token id atomically and submits the mint
// to the provider after commit.
package service

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/internal/mint/phase"
	"mintgate/internal/mint/ports"
	"mintgate/internal/mint/supply"
)

const defaultSubmitTimeout = 10 * time.Second

// Config is the sale configuration the engine enforces.
type Config struct {
	ChainName         string
	CollectionAddress string
	Phases            []models.Phase
	// MaxTokenSupplyAcrossAllPhases caps the collection; 0 disables the cap.
	MaxTokenSupplyAcrossAllPhases int64
}

// Service is the admission engine. It owns the check → reserve → submit
// sequence; status transitions belong to the reconciler.
type Service struct {
	store    ports.Store
	tx       ports.TxRunner
	provider ports.Provider
	metadata ports.MetadataSource
	events   ports.EventPublisher

	cfg        Config
	collection string
	accountant *supply.Accountant
	allocator  *supply.Allocator

	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	submitTimeout  time.Duration
	newReferenceID func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithMetadataSource(src ports.MetadataSource) Option {
	return func(s *Service) {
		s.metadata = src
	}
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSubmitTimeout bounds the post-commit provider call.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithReferenceIDGenerator replaces uuid.New, for deterministic tests.
func WithReferenceIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) {
		if fn != nil {
			s.newReferenceID = fn
		}
	}
}

// New validates the phase schedule and constructs the engine. An invalid
// schedule is a configuration error and must stop startup.
func New(store ports.Store, tx ports.TxRunner, provider ports.Provider, cfg Config, opts ...Option) (*Service, error) {
	if err := phase.ValidateSchedule(cfg.Phases); err != nil {
		return nil, err
	}
	allocator := supply.NewAllocator(cfg.Phases)
	s := &Service{
		store:          store,
		tx:             tx,
		provider:       provider,
		cfg:            cfg,
		collection:     NormalizeAddress(cfg.CollectionAddress),
		allocator:      allocator,
		accountant:     supply.NewAccountant(cfg.Phases, cfg.MaxTokenSupplyAcrossAllPhases, allocator),
		logger:         slog.Default(),
		tracer:         otel.Tracer("mintgate/mint"),
		submitTimeout:  defaultSubmitTimeout,
		newReferenceID: uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Phases returns the configured schedule.
func (s *Service) Phases() []models.Phase {
	return s.cfg.Phases
}

// CollectionAddress returns the normalised collection address.
func (s *Service) CollectionAddress() string {
	return s.collection
}

// NormalizeAddress lower-cases a hex address; addresses are stored lower-case.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
