package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// stubPublisher is a mock publisher for testing.
type stubPublisher struct {
	published    int
	lastTopic    string
	lastPayload  []byte
	lastMetadata message.Metadata
}

// Publish increments the published count and records the topic.
func (s *stubPublisher) Publish(topic string, msgs ...*message.Message) error {
	s.published += len(msgs)
	s.lastTopic = topic
	if len(msgs) > 0 {
		s.lastPayload = append([]byte(nil), msgs[0].Payload...)
		s.lastMetadata = msgs[0].Metadata
	}
	return nil
}

// Close is a no-op.
func (s *stubPublisher) Close() error {
	return nil
}

func registerStubDriver(t *testing.T, name string, stub *stubPublisher, closeFn func() error) {
	t.Helper()
	orig, had := publisherFactories[name]
	t.Cleanup(func() {
		if had {
			publisherFactories[name] = orig
		} else {
			delete(publisherFactories, name)
		}
	})
	RegisterPublisherDriver(name, func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return stub, closeFn, nil
	})
}

// TestRegisterPublisherDriver tests that a custom publisher driver can be registered and used.
func TestRegisterPublisherDriver(t *testing.T) {
	stub := &stubPublisher{}
	closed := false
	registerStubDriver(t, "custom", stub, func() error { closed = true; return nil })

	pub, err := NewPublisher(WatermillConfig{Driver: "custom"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "custom.topic", Event{Provider: "github"}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if stub.published != 1 || stub.lastTopic != "custom.topic" {
		t.Fatalf("expected publish to custom.topic once, got %d to %q", stub.published, stub.lastTopic)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatalf("expected custom close to be called")
	}
}

// TestHTTPURLTarget tests that the HTTP target URL is constructed correctly.
func TestHTTPURLTarget(t *testing.T) {
	url, err := httpTargetURL(HTTPConfig{Mode: "base_url", BaseURL: "http://localhost:8080/hooks"}, "topic")
	if err != nil {
		t.Fatalf("httpTargetURL: %v", err)
	}
	if url != "http://localhost:8080/hooks/topic" {
		t.Fatalf("unexpected url: %q", url)
	}

	url, err = httpTargetURL(HTTPConfig{Mode: "topic_url"}, "http://sink.internal/push")
	if err != nil {
		t.Fatalf("httpTargetURL topic_url: %v", err)
	}
	if url != "http://sink.internal/push" {
		t.Fatalf("unexpected topic_url target: %q", url)
	}

	if _, err := httpTargetURL(HTTPConfig{Mode: "topic_url"}, ""); err == nil {
		t.Fatal("expected error for empty topic in topic_url mode")
	}
}

// TestMultipleDrivers tests that the publisher can be configured to publish to multiple drivers.
func TestMultipleDrivers(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	registerStubDriver(t, "multi-a", a, nil)
	registerStubDriver(t, "multi-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"multi-a", "multi-b"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "multi.topic", Event{Provider: "github"}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a.published != 1 || b.published != 1 {
		t.Fatalf("expected publish to both drivers, got a=%d b=%d", a.published, b.published)
	}
}

// TestPublishForDriversSubset tests that a driver restriction reaches only
// the named drivers.
func TestPublishForDriversSubset(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	registerStubDriver(t, "subset-a", a, nil)
	registerStubDriver(t, "subset-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"subset-a", "subset-b"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "subset.topic", Event{}, []string{"subset-b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a.published != 0 {
		t.Fatalf("expected restricted driver to be skipped, got %d publishes", a.published)
	}
	if b.published != 1 {
		t.Fatalf("expected named driver to publish once, got %d", b.published)
	}
}

// TestPublishUnknownDriver tests that restricting to an unconfigured driver
// surfaces an error.
func TestPublishUnknownDriver(t *testing.T) {
	stub := &stubPublisher{}
	registerStubDriver(t, "known", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "known"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "t", Event{}, []string{"nope"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if stub.published != 0 {
		t.Fatalf("expected no publishes, got %d", stub.published)
	}
}

// TestPublishEncodesEventAndMetadata tests the wire shape: the classified
// event as JSON payload, with delivery identity in the message metadata and
// the raw webhook body kept off the wire.
func TestPublishEncodesEventAndMetadata(t *testing.T) {
	stub := &stubPublisher{}
	registerStubDriver(t, "payload", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "payload"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	event := Event{
		Provider:     "github",
		Name:         "push",
		DeliveryID:   "d-123",
		Repository:   "acme/site",
		Branch:       "main",
		ChangedFiles: []string{"index.html"},
		Interest:     Interest{FrontendAsset: true},
		RawPayload:   []byte(`{"ref":"refs/heads/main"}`),
	}
	if err := pub.PublishForDrivers(context.Background(), "payload.topic", event, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(stub.lastPayload, &decoded); err != nil {
		t.Fatalf("decode published payload: %v", err)
	}
	if decoded["repository"] != "acme/site" || decoded["branch"] != "main" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if _, leaked := decoded["ref"]; leaked {
		t.Fatal("raw webhook body leaked into the published payload")
	}
	flags, ok := decoded["flags"].(map[string]interface{})
	if !ok || flags["frontend_asset"] != true {
		t.Fatalf("expected frontend_asset flag in payload, got %v", decoded["flags"])
	}

	if stub.lastMetadata.Get("provider") != "github" {
		t.Fatalf("expected provider metadata")
	}
	if stub.lastMetadata.Get("event") != "push" {
		t.Fatalf("expected event metadata")
	}
	if stub.lastMetadata.Get("delivery_id") != "d-123" {
		t.Fatalf("expected delivery_id metadata")
	}
}

// TestRetryBuild tests the attempt accounting of the construction retry.
func TestRetryBuild(t *testing.T) {
	calls := 0
	_, err := retryBuild(3, time.Millisecond, func() (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	calls = 0
	got, err := retryBuild(3, time.Millisecond, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("down")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 2 {
		t.Fatalf("expected success on attempt 2, got value %d after %d calls", got, calls)
	}
}
