package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedkafka "github.com/radieske/bet-feed/internal/shared/kafka"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// KafkaPublisher encapsula o writer Kafka e o logger.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher cria um publisher para o tópico de apostas liquidadas.
// A mensagem é particionada pelo id da aposta.
func NewKafkaPublisher(brokers, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: sharedkafka.NewWriter(brokers, topic),
		log:    log,
	}
}

// Publish serializa o evento em JSON e envia para o tópico configurado.
func (p *KafkaPublisher) Publish(ctx context.Context, e events.BetSettled) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal bet_settled: %w", err)
	}

	if err := sharedkafka.WriteJSON(ctx, p.writer, e.BetID, value); err != nil {
		p.log.Error("failed to publish bet_settled", zap.String("bet_id", e.BetID), zap.Error(err))
		return err
	}

	p.log.Debug("published bet_settled", zap.String("bet_id", e.BetID))
	return nil
}

// Close finaliza o writer e libera recursos associados.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
