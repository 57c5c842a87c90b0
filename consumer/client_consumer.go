package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"client-directory/models"
	"client-directory/monitoring"
	"client-directory/utils"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ClientConsumer keeps the Redis cache and the Elasticsearch index in step
// with the directory. Either sink may be nil.
type ClientConsumer struct {
	repo     models.Repository
	cache    utils.RedisClient
	es       utils.ElasticsearchClient
	reader   MessageReader
	logger   *log.Logger
	shutdown chan struct{}
	done     chan struct{}
	started  bool
}

func NewClientConsumer(repo models.Repository, cache utils.RedisClient, es utils.ElasticsearchClient, reader MessageReader, logger *log.Logger) *ClientConsumer {
	if logger == nil {
		logger = log.Default()
	}
	return &ClientConsumer{
		repo:     repo,
		cache:    cache,
		es:       es,
		reader:   reader,
		logger:   logger,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *ClientConsumer) Start(ctx context.Context) {
	c.logger.Println("Starting Kafka consumer...")
	c.started = true

	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.shutdown:
				return
			case <-ctx.Done():
				return
			default:
				c.processMessage(ctx)
			}
		}
	}()
}

// Stop closes the reader, which also unblocks a pending ReadMessage, and
// waits for the loop to exit.
func (c *ClientConsumer) Stop() {
	close(c.shutdown)
	if err := c.reader.Close(); err != nil {
		c.logger.Printf("Error closing Kafka reader: %v", err)
	}
	if c.started {
		<-c.done
	}
}

func (c *ClientConsumer) processMessage(ctx context.Context) {
	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return
		}
		c.logger.Printf("Kafka read error: %v (will retry)", err)
		select {
		case <-time.After(5 * time.Second):
		case <-c.shutdown:
		case <-ctx.Done():
		}
		return
	}

	var event models.ClientEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.logger.Printf("Failed to unmarshal Kafka message: %v", err)
		return
	}

	result := "processed"
	if err := c.Handle(ctx, event); err != nil {
		result = "failed"
		c.logger.Printf("Failed to process %s for client %d: %v", event.Event, event.ClientID, err)
	}
	monitoring.ClientEventsTotal.WithLabelValues(event.Event, result).Inc()
}

// Handle applies one event to the cache and the index.
func (c *ClientConsumer) Handle(ctx context.Context, event models.ClientEvent) error {
	switch event.Event {
	case models.EventClientCreated, models.EventClientUpdated, models.EventPhoneAdded, models.EventPhoneDeleted:
		return c.refresh(ctx, event.ClientID)
	case models.EventClientDeleted:
		return c.remove(ctx, event.ClientID)
	default:
		return fmt.Errorf("unknown event type: %s", event.Event)
	}
}

// refresh reloads the client from the store rather than trusting the event
// payload, so out-of-date events cannot resurrect stale data.
func (c *ClientConsumer) refresh(ctx context.Context, id uint) error {
	client, err := c.repo.GetClient(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return c.remove(ctx, id)
	}
	if err != nil {
		return err
	}
	phones, err := c.repo.ListPhones(ctx, id)
	if err != nil {
		return err
	}
	doc := models.NewClientDocument(client, phones)

	if c.cache != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal client to JSON: %w", err)
		}
		if err := c.cache.SetToCache(ctx, utils.ClientCacheKey(id), string(raw), utils.ClientCacheTTL); err != nil {
			return fmt.Errorf("failed to cache client: %w", err)
		}
	}

	if c.es != nil {
		if err := c.es.IndexClient(ctx, doc); err != nil {
			return fmt.Errorf("failed to index client: %w", err)
		}
	}
	return nil
}

func (c *ClientConsumer) remove(ctx context.Context, id uint) error {
	if c.cache != nil {
		if err := c.cache.DeleteFromCache(ctx, utils.ClientCacheKey(id)); err != nil {
			return fmt.Errorf("failed to delete client from cache: %w", err)
		}
	}

	if c.es != nil {
		if err := c.es.DeleteClient(ctx, id); err != nil {
			return fmt.Errorf("failed to delete client from Elasticsearch: %w", err)
		}
	}
	return nil
}
