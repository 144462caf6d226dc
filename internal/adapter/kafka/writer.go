package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/aq-dashboard-service/internal/config"
	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

const (
	// batchSize bounds a single WriteMessages call.
	batchSize = 500
	// batchTimeout flushes partial per-partition batches; the kafka-go
	// default of 1s would stall every hashed WriteMessages call.
	batchTimeout = 50 * time.Millisecond
)

// messageWriter is the subset of *kafkago.Writer the snapshot writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes freshly normalized tables to the snapshot topic, one
// message per record. It implements pipeline.Publisher.
type Writer struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// PublishTable serializes every record of t and writes them in batches.
// Records keyed by dataset|entity|dimension|year land on a stable partition.
func (w *Writer) PublishTable(ctx context.Context, t *domain.NormalizedTable) error {
	if len(t.Records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, min(len(t.Records), batchSize))
	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			w.metrics.SnapshotMessages.WithLabelValues("error").Add(float64(len(msgs)))
			return fmt.Errorf("write snapshot batch: %w", err)
		}
		w.metrics.SnapshotMessages.WithLabelValues("success").Add(float64(len(msgs)))
		msgs = msgs[:0]
		return nil
	}

	for i := range t.Records {
		msg, err := serializeRecord(t.Spec.Name, t.LoadedAt, t.Records[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	w.logger.Info("snapshot published", "dataset", t.Spec.Name, "records", len(t.Records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// snapshotRecord is the wire form of one normalized record.
type snapshotRecord struct {
	Dataset string `json:"dataset"`
	domain.NormalizedRecord
	LoadedAt time.Time `json:"loaded_at"`
}

// serializeRecord marshals a NormalizedRecord into a Kafka message.
func serializeRecord(dataset string, loadedAt time.Time, rec domain.NormalizedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(snapshotRecord{Dataset: dataset, NormalizedRecord: rec, LoadedAt: loadedAt})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(recordKey(dataset, rec)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(dataset)},
			{Key: "source_id", Value: []byte(rec.SourceID)},
			{Key: "loaded_at", Value: []byte(loadedAt.Format(time.RFC3339))},
		},
	}, nil
}

func recordKey(dataset string, rec domain.NormalizedRecord) string {
	return strings.Join([]string{dataset, rec.Entity, rec.Dimension, strconv.Itoa(rec.Year)}, "|")
}
