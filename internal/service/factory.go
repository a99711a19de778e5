package service

import (
	"context"

	"github.com/chronobill/chronobill/internal/config"
	"github.com/chronobill/chronobill/internal/domain/catalog"
	"github.com/chronobill/chronobill/internal/domain/events"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/types"
)

// TxRunner executes a function inside one write transaction. postgres.DB
// implements it; tests use NoopTxRunner. One transaction per subscription per
// logical operation is the serialization boundary the event store relies on.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoopTxRunner runs the function without any transactional boundary. Only
// suitable for single-writer setups such as tests and dry runs.
type NoopTxRunner struct{}

func (NoopTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	Clock  types.Clock
	DB     TxRunner

	Catalog catalog.Catalog

	// Repositories
	EventRepo events.Repository
	SubRepo   subscription.Repository
}

func (p ServiceParams) now() types.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return types.RealClock()
}

func (p ServiceParams) tx() TxRunner {
	if p.DB != nil {
		return p.DB
	}
	return NoopTxRunner{}
}
