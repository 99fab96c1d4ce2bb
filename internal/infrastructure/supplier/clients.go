package supplier

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/infrastructure/config"
)

// NewClients builds the integrations that have a base URL configured.
// Unconfigured suppliers stay nil in the returned mapping. observer may be nil.
func NewClients(cfg config.SuppliersConfig, observer RequestObserver, logger *zap.Logger) (procurement.SupplierClients, error) {
	var clients procurement.SupplierClients

	if cfg.EzCards.Configured() {
		ez, err := NewEzCardsClient(EzCardsConfig{
			BaseURL:        cfg.EzCards.BaseURL,
			APIKey:         cfg.EzCards.APIKey,
			AccessToken:    cfg.EzCards.AccessToken,
			TimeoutSeconds: cfg.EzCards.TimeoutSeconds,
			Retry:          RetryPolicy{MaxAttempts: cfg.EzCards.MaxAttempts, Delay: cfg.EzCards.RetryDelay},
		}, logger)
		if err != nil {
			return clients, fmt.Errorf("ezcards: %w", err)
		}
		if observer != nil {
			ez.SetObserver(observer)
		}
		clients.EzCards = ez
	} else {
		logger.Warn("EzCards is not configured, its products cannot be ordered")
	}

	if cfg.Gift2Games.Configured() {
		g2g, err := NewGift2GamesClient(Gift2GamesConfig{
			BaseURL:        cfg.Gift2Games.BaseURL,
			APIKey:         cfg.Gift2Games.APIKey,
			APISecret:      cfg.Gift2Games.APISecret,
			TimeoutSeconds: cfg.Gift2Games.TimeoutSeconds,
			Retry:          RetryPolicy{MaxAttempts: cfg.Gift2Games.MaxAttempts, Delay: cfg.Gift2Games.RetryDelay},
		}, logger)
		if err != nil {
			return clients, fmt.Errorf("gift2games: %w", err)
		}
		if observer != nil {
			g2g.SetObserver(observer)
		}
		clients.Gift2Games = g2g
	} else {
		logger.Warn("Gift2Games is not configured, its products cannot be ordered")
	}

	return clients, nil
}
