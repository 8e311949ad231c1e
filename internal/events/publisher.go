package events

import (
	"context"
	"fmt"
	"time"

	"catalog-import-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher announces imported products on the shared products stream
type Publisher struct {
	publisher *events.Publisher
	tenantID  string
	logger    *logrus.Entry
}

// NewPublisher connects to NATS and makes sure the products stream exists
func NewPublisher(natsURL, tenantID string, logger *logrus.Logger) (*Publisher, error) {
	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "catalog-import-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, events.StreamProducts, []string{"product.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure products stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		tenantID:  tenantID,
		logger:    logger.WithField("component", "import-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishImportedProduct emits product.created or product.updated for a row
// written by an import run. Publishing never blocks the caller.
func (p *Publisher) PublishImportedProduct(ctx context.Context, product *models.Product, created bool, run *models.ImportRun) {
	eventType := events.ProductUpdated
	changeType := "updated"
	if created {
		eventType = events.ProductCreated
		changeType = "created"
	}

	event := events.NewProductEvent(eventType, p.tenantID)
	event.SourceID = uuid.New().String()
	event.ProductID = product.ID.String()
	event.ProductName = product.Name
	event.SKU = product.SKU
	event.Status = "ACTIVE"
	event.Price = product.Price.InexactFloat64()
	if product.CategoryID != nil {
		event.CategoryID = product.CategoryID.String()
	}
	event.ActorID = run.UploadedBy
	event.ChangeType = changeType
	event.NewValue = map[string]interface{}{
		"name":          product.Name,
		"price":         product.Price.String(),
		"stockQuantity": product.StockQuantity,
		"unit":          product.Unit,
		"importRunId":   run.ID.String(),
	}

	p.publish(event)
}

func (p *Publisher) publish(event *events.ProductEvent) {
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.PublishProduct(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"productID": event.ProductID,
				"sku":       event.SKU,
			}).WithError(err).Error("Failed to publish product event")
			return
		}
		p.logger.WithFields(logrus.Fields{
			"eventType": event.EventType,
			"productID": event.ProductID,
			"sku":       event.SKU,
		}).Debug("Product event published")
	}()
}
