package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(" a:9092, b:9092 ,"))
	assert.Equal(t, []string{"localhost:9092"}, brokers("localhost:9092"))
	assert.Empty(t, brokers(""))
}

func TestEnsureTopic_NoBrokers(t *testing.T) {
	err := EnsureTopic(context.Background(), " , ", "bet_settled", 1)
	assert.EqualError(t, err, "kafka brokers not provided")
}
