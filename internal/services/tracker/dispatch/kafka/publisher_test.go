package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func TestDispatchPublishesJSONKeyedByUser(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "tracker.dispatch" {
			return fmt.Errorf("topic = %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "user-1" {
			return fmt.Errorf("key = %q", key)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded Message
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		if decoded.Kind != string(domain.DispatchDeadlineReminder) || decoded.Payload[domain.PayloadThreshold] != "3" {
			return fmt.Errorf("message = %+v", decoded)
		}
		if !decoded.DispatchedAt.Equal(testNow) {
			return fmt.Errorf("dispatched_at = %v", decoded.DispatchedAt)
		}
		return nil
	})
	publisher, err := NewPublisher(producer, "tracker.dispatch", fixedClock)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			t.Fatalf("close publisher: %v", err)
		}
	}()

	err = publisher.Dispatch(context.Background(), "user-1", domain.DispatchDeadlineReminder, map[string]string{
		domain.PayloadThreshold: "3",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestDispatchReturnsBrokerError(t *testing.T) {
	brokerErr := errors.New("leader not available")
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(brokerErr)
	publisher, err := NewPublisher(producer, "tracker.dispatch", fixedClock)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	err = publisher.Dispatch(context.Background(), "user-1", domain.DispatchCustom, nil)
	if !errors.Is(err, brokerErr) {
		t.Fatalf("err = %v, want %v", err, brokerErr)
	}
}

func TestDispatchHonorsCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	publisher, err := NewPublisher(producer, "tracker.dispatch", fixedClock)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Dispatch(ctx, "user-1", domain.DispatchCustom, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want %v", err, context.Canceled)
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(nil, "topic", nil); err == nil {
		t.Fatal("expected error for nil producer")
	}
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	if _, err := NewPublisher(producer, " ", nil); !errors.Is(err, ErrTopicRequired) {
		t.Fatalf("err = %v, want %v", err, ErrTopicRequired)
	}
}
