package broker

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IliaW/url-scrape-archiver/config"
	"github.com/IliaW/url-scrape-archiver/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducerClient publishes artifact events read from eventChan.
// Run returns after eventChan is closed and the remaining batch is flushed.
type KafkaProducerClient struct {
	eventChan <-chan *model.ArtifactEvent
	writer    messageWriter
	cfg       *config.ProducerConfig
	log       *slog.Logger
	wg        *sync.WaitGroup
}

func NewKafkaProducer(eventChan <-chan *model.ArtifactEvent, cfg *config.ProducerConfig, log *slog.Logger,
	wg *sync.WaitGroup) *KafkaProducerClient {
	p := &KafkaProducerClient{
		eventChan: eventChan,
		cfg:       cfg,
		log:       log,
		wg:        wg,
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Addr, ",")...),
		Topic:        cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    1,                // the parameter is controlled by 'batchTicker' variable
		BatchTimeout: time.Millisecond, // the parameter is controlled by 'batch' variable
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAsks),
		Async:        cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}

	return p
}

func (p *KafkaProducerClient) Run() {
	defer p.wg.Done()
	p.log.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))
	defer func() {
		err := p.writer.Close()
		if err != nil {
			p.log.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchSize := max(p.cfg.BatchSize, 1)
	batchTicker := time.NewTicker(p.cfg.BatchTimeout)
	defer batchTicker.Stop()
	batch := make([]kafka.Message, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		defer cancel()
		err := p.writer.WriteMessages(ctx, batch...)
		if err != nil {
			p.log.Error("failed to send messages to kafka.", slog.String("err", err.Error()),
				slog.Int("batch length", len(batch)))
		} else {
			p.log.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case event, ok := <-p.eventChan:
			if !ok {
				// some messages may remain in the batch after eventChan is closed
				flush()
				p.log.Info("stopping kafka writer.")
				return
			}
			msg, err := encode(event)
			if err != nil {
				p.log.Error("marshaling error.", slog.String("err", err.Error()),
					slog.String("filename", event.Filename))
				continue
			}
			batch = append(batch, msg)
			if len(batch) >= batchSize {
				flush()
			}
		case <-batchTicker.C:
			flush()
		}
	}
}

func encode(event *model.ArtifactEvent) (kafka.Message, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.Filename),
		Value: body,
	}, nil
}
