package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dkovalev/molotok/internal/adapters/database"
	pkgdb "github.com/dkovalev/molotok/pkg/database"
	pkgevents "github.com/dkovalev/molotok/pkg/events"
)

// AuctionEventsProducer relays notifier intents from the outbox table to
// the auction.events exchange.
type AuctionEventsProducer struct {
	relay     *pkgevents.OutboxRelay
	publisher *pkgevents.RabbitMQPublisher
}

// NewAuctionEventsProducer creates a new producer
func NewAuctionEventsProducer(pool *pgxpool.Pool, conn *amqp.Connection, logger *slog.Logger) (*AuctionEventsProducer, error) {
	publisher, err := pkgevents.NewRabbitMQPublisher(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	txManager := pkgdb.NewPostgresTransactionManager(pool, 3*time.Second)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	relay := pkgevents.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		10,                   // batch size
		500*time.Millisecond, // polling interval
		pkgevents.ExchangeAuctionEvents,
		logger,
	)

	return &AuctionEventsProducer{
		relay:     relay,
		publisher: publisher,
	}, nil
}

// Run starts the relay loop
func (p *AuctionEventsProducer) Run(ctx context.Context) error {
	return p.relay.Run(ctx)
}

// Close closes the publisher channel
func (p *AuctionEventsProducer) Close() error {
	return p.publisher.Close()
}
