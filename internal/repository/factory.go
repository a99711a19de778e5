package repository

import (
	"github.com/chronobill/chronobill/internal/domain/events"
	"github.com/chronobill/chronobill/internal/domain/subscription"
	"github.com/chronobill/chronobill/internal/logger"
	"github.com/chronobill/chronobill/internal/postgres"
	postgresRepo "github.com/chronobill/chronobill/internal/repository/postgres"
)

func NewSubscriptionEventRepository(db *postgres.DB, logger *logger.Logger) events.Repository {
	return postgresRepo.NewSubscriptionEventRepository(db, logger)
}

func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}
