package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"khata/internal/core"
	"khata/internal/events"
)

func TestExponentialBackoff(t *testing.T) {
	want := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		3:  8 * time.Second,
		4:  16 * time.Second,
		5:  maxBackoff,
		70: maxBackoff,
	}
	for attempt, d := range want {
		t.Run(fmt.Sprint(attempt), func(t *testing.T) {
			if got := exponentialBackoff(attempt); got != d {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, d)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{amqp091.ErrClosed, true},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("NOT_FOUND - no exchange 'khata'"), false},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMessage(t *testing.T) {
	e := events.NewLedgerEvent(events.SaleRecorded, 4, 17, core.MustMoney("26"), core.MustMoney("126"))
	body, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	msg := message(e, body)
	if msg.DeliveryMode != amqp091.Persistent {
		t.Errorf("delivery mode = %d, want persistent", msg.DeliveryMode)
	}
	if msg.ContentType != "application/json" || msg.MessageId != e.EventID || msg.Type != string(events.SaleRecorded) {
		t.Errorf("properties = %q %q %q", msg.ContentType, msg.MessageId, msg.Type)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded["amount"] != "26.00" || decoded["outstanding"] != "126.00" {
		t.Errorf("body amounts = %v / %v", decoded["amount"], decoded["outstanding"])
	}
}

func TestCircuitBreaker(t *testing.T) {
	c := &Client{exchangeName: "khata", queueName: "ledger_events"}

	if c.isCircuitOpen() {
		t.Fatal("a new client must start closed")
	}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatalf("circuit opened after %d failures", maxFailures-1)
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("circuit should open at maxFailures")
	}

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatal("circuit should be half-open once the timeout has passed")
	}

	c.recordFailure()
	if atomic.LoadInt32(&c.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	c.recordSuccess()
	if atomic.LoadInt32(&c.state) != StateClosed || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset the count")
	}
}

func TestPublishShortCircuits(t *testing.T) {
	e := events.NewLedgerEvent(events.PaymentRecorded, 1, 123, core.MustMoney("10"), core.MustMoney("0"))

	open := &Client{state: StateOpen, lastFailure: time.Now()}
	if err := open.Publish(context.Background(), e); err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("open circuit err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (&Client{}).Publish(ctx, e); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context err = %v", err)
	}
}
