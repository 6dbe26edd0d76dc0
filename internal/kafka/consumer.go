package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"safepulse/internal/alert"
	"safepulse/internal/config"
	"safepulse/internal/logging"
	"safepulse/internal/models"
)

// Feed persists raw location updates before they are merged.
type Feed interface {
	AppendLocation(ctx context.Context, upd models.LocationUpdate) error
}

// Consumer reads incident triggers and location updates off Kafka and feeds
// them into the coordinator.
type Consumer struct {
	triggers  *kafka.Reader
	locations *kafka.Reader
	coord     *alert.Coordinator
	feed      Feed
	logger    *logging.Logger
}

// NewConsumer builds readers for the trigger and location topics.
func NewConsumer(cfg config.Config, coord *alert.Coordinator, feed Feed, logger *logging.Logger) *Consumer {
	return &Consumer{
		triggers: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.Kafka.Broker},
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.TriggerTopic,
		}),
		locations: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.Kafka.Broker},
			GroupID: cfg.Kafka.GroupID,
			Topic:   cfg.Kafka.LocationTopic,
		}),
		coord:  coord,
		feed:   feed,
		logger: logger,
	}
}

// Start launches both consume loops.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consumeTriggers(ctx)
	}()
	go func() {
		defer wg.Done()
		c.consumeLocations(ctx)
	}()
}

// Close shuts down both readers.
func (c *Consumer) Close() {
	if err := c.triggers.Close(); err != nil {
		c.logger.Errorf("Closing trigger reader failed: %v", err)
	}
	if err := c.locations.Close(); err != nil {
		c.logger.Errorf("Closing location reader failed: %v", err)
	}
}

func (c *Consumer) consumeTriggers(ctx context.Context) {
	c.logger.Infof("Trigger consumer started on topic %s", c.triggers.Config().Topic)
	for {
		msg, err := c.triggers.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Errorf("Read trigger message failed: %v", err)
			continue
		}

		var in struct {
			UserID    string    `json:"user_id"`
			Reason    string    `json:"reason"`
			Latitude  float64   `json:"latitude"`
			Longitude float64   `json:"longitude"`
			Timestamp time.Time `json:"timestamp"`
			Note      string    `json:"note"`
		}
		if err := json.Unmarshal(msg.Value, &in); err != nil {
			c.logger.Errorf("Unmarshal trigger message failed: %v", err)
			continue
		}
		if in.UserID == "" {
			c.logger.Errorf("Invalid trigger message: missing user_id")
			continue
		}
		if in.Timestamp.IsZero() {
			in.Timestamp = time.Now()
		}
		reason := models.TriggerReason(in.Reason)
		if reason != models.ReasonManual && reason != models.ReasonAutomatic {
			reason = models.ReasonManual
		}

		id, err := c.coord.Trigger(ctx, models.IncidentTrigger{
			UserID: in.UserID,
			Reason: reason,
			Location: models.Location{
				Latitude:  in.Latitude,
				Longitude: in.Longitude,
				Timestamp: in.Timestamp,
			},
			Note: in.Note,
		})
		if err != nil {
			c.logger.Errorf("Trigger for user %s failed: %v", in.UserID, err)
			continue
		}
		c.logger.Infof("Processed trigger for user %s, alert %s", in.UserID, id)
	}
}

func (c *Consumer) consumeLocations(ctx context.Context) {
	c.logger.Infof("Location consumer started on topic %s", c.locations.Config().Topic)
	for {
		msg, err := c.locations.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Errorf("Read location message failed: %v", err)
			continue
		}

		var upd models.LocationUpdate
		if err := json.Unmarshal(msg.Value, &upd); err != nil {
			c.logger.Errorf("Unmarshal location message failed: %v", err)
			continue
		}
		if upd.UserID == "" || upd.Timestamp.IsZero() {
			c.logger.Errorf("Invalid location message: missing user_id or timestamp")
			continue
		}

		if err := c.feed.AppendLocation(ctx, upd); err != nil {
			c.logger.Errorf("Appending location for user %s failed: %v", upd.UserID, err)
		}
		if err := c.coord.MergeLocation(ctx, upd.UserID, upd); err != nil {
			if errors.Is(err, alert.ErrUnknownAlert) {
				continue // no active alert, feed entry kept for later
			}
			c.logger.Errorf("Merging location for user %s failed: %v", upd.UserID, err)
		}
	}
}
