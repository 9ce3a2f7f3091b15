package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/sales/internal/messaging/kafka"
)

const consumerDeadLetter = `{"originalTopic":"sales.events","originalKey":"sale-1","originalValue":"{\"id\":\"evt-1\"}","errorMessage":"handler failed","retryCount":3}`

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, noEnv)
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 2 || cfg.limit != 10 || !cfg.execute || !cfg.fromNewest || cfg.idleTimeout != 3*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.sourceTopic != kafka.TopicDeadLetterQueue || cfg.targetTopic != kafka.TopicSaleEvents {
		t.Fatalf("unexpected default topics: %s -> %s", cfg.sourceTopic, cfg.targetTopic)
	}
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	cfg, err := readConfig(nil, func(key string) (string, bool) {
		if key == envKafkaBrokers {
			return "env-broker:9092", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("readConfig failed: %v", err)
	}
	if len(cfg.brokers) != 1 || cfg.brokers[0] != "env-broker:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.brokers)
	}
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=b:9092", "-source-topic= "}, "source-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic="}, "target-topic is required"},
		{[]string{"-brokers=b:9092", "-target-topic=sales.dlq"}, "must differ"},
		{[]string{"-brokers=b:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=b:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}
	for _, tt := range tests {
		_, err := readConfig(tt.args, noEnv)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("args %v: expected %q, got %v", tt.args, tt.want, err)
		}
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, kafka.ReplayMessage{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	if err := publishReplay(producer, kafka.ReplayMessage{Topic: "sales.events", Key: "sale-1", Value: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 || producer.lastMsg.Topic != "sales.events" {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}
	if len(producer.lastMsg.Headers) != 1 || string(producer.lastMsg.Headers[0].Key) != headerReplayedAt {
		t.Fatalf("replayed message must carry %s header", headerReplayedAt)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, kafka.ReplayMessage{Topic: "t"}); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(0, consumerDeadLetter)),
	}}
	cfg := testConfig(false)

	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats != (replayStats{processed: 1, replayed: 1}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestProcessPartition_ExecuteOutboxDeadLetter(t *testing.T) {
	deadLetter := map[string]any{
		"id":            "outbox-1",
		"aggregateType": "sale",
		"saleId":        "sale-1",
		"eventType":     "sale.cancelled",
		"payload": map[string]any{
			"outboxId":      "outbox-1",
			"aggregateType": "sale",
			"saleId":        "sale-1",
			"eventType":     "sale.cancelled",
			"payload":       map[string]any{"saleId": "sale-1", "reason": "customer request"},
			"publishError":  "timeout",
		},
	}
	raw, err := json.Marshal(deadLetter)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(0, string(raw))),
	}}
	producer := &stubReplayProducer{}

	stats, err := processPartition(context.Background(), consumer, client, producer, testConfig(true), 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats.replayed != 1 || producer.calls != 1 {
		t.Fatalf("expected one replay, got %+v calls=%d", stats, producer.calls)
	}
	if producer.lastMsg.Topic != "sales.events" {
		t.Fatalf("outbox dead letter must go to the target topic, got %s", producer.lastMsg.Topic)
	}

	value, err := producer.lastMsg.Value.Encode()
	if err != nil {
		t.Fatalf("encode value: %v", err)
	}
	env, err := kafka.DecodeEnvelope(value)
	if err != nil {
		t.Fatalf("replayed value must be an envelope: %v", err)
	}
	if env.SaleID != "sale-1" || env.EventType != "sale.cancelled" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := testConfig(true)

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, clientOffsetErr, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumerErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	if _, err := processPartition(context.Background(), consumerErr, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}

	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(0, `{"id":"x","eventType":"sale.created","payload":"not-an-object"}`)),
	}}
	stats, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1)
	if err != nil {
		t.Fatalf("unexpected bad-payload error: %v", err)
	}
	if stats.skipped != 1 {
		t.Fatalf("expected skipped=1, got %+v", stats)
	}

	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(0, consumerDeadLetter)),
	}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{sendErr: errors.New("send fail")}, cfg, 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}
}

func TestProcessPartition_StopsAtStartWatermark(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 1}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(append(dlqMessage(0, consumerDeadLetter), dlqMessage(1, consumerDeadLetter)...)),
	}}

	stats, err := processPartition(context.Background(), consumer, client, nil, testConfig(false), 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if stats.processed != 1 {
		t.Fatalf("messages past the start watermark must wait, got %+v", stats)
	}
}

func TestProcessPartition_FromNewest(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 3, newest: 10}}}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(nil),
	}}
	cfg := testConfig(false)
	cfg.fromNewest = true

	if _, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 2); err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if consumer.calls[0].offset != 8 {
		t.Fatalf("expected start offset 8, got %d", consumer.calls[0].offset)
	}
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	cfg := testConfig(false)

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}
	stats, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if stats.processed != 0 {
		t.Fatalf("expected processed=0, got %+v", stats)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	if _, err := processPartition(ctx, consumer, client, nil, cfg, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestRunReplay(t *testing.T) {
	cfg := testConfig(false)
	cfg.limit = 1

	if err := runReplay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{
		0: closedPartitionConsumer(dlqMessage(0, consumerDeadLetter)),
		2: closedPartitionConsumer(dlqMessage(0, consumerDeadLetter)),
	}}

	if err := runReplay(context.Background(), cfg, client, consumer, nil); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].partition != 0 {
		t.Fatalf("expected only the first sorted partition due to limit=1, got %+v", consumer.calls)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	if err := runReplay(context.Background(), cfg, &stubOffsetClient{}, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
	if err := runReplay(context.Background(), cfg, &stubOffsetClient{partitionsErr: errors.New("meta")}, consumer, nil); err == nil {
		t.Fatal("expected partitions error")
	}
}

func noEnv(string) (string, bool) { return "", false }

func testConfig(execute bool) config {
	return config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicSaleEvents,
		limit:       defaultReplayLimit,
		execute:     execute,
		idleTimeout: 20 * time.Millisecond,
	}
}

func dlqMessage(offset int64, value string) []*sarama.ConsumerMessage {
	return []*sarama.ConsumerMessage{{Partition: 0, Offset: offset, Value: []byte(value)}}
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}
	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error { return nil }

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error { return nil }

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

// closedPartitionConsumer отдаёт заранее известные сообщения и закрывает каналы.
func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	return &stubPartitionConsumer{messages: msgCh, errors: make(chan *sarama.ConsumerError)}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error { return nil }
