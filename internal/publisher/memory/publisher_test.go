package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/meizi0715/bdt-v1.5/internal/publisher"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Publish(context.Background(), publisher.Message{Subject: "a"}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if err := pub.Publish(context.Background(), publisher.Message{Subject: "b"}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Subject != "a" || msgs[1].Subject != "b" {
		t.Fatalf("subjects not recorded correctly: %+v", msgs)
	}

	msgs[0].Subject = "modified"
	if pub.Messages()[0].Subject == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
	if pub.Name() != "memory" {
		t.Fatalf("unexpected name %q", pub.Name())
	}
}

func TestFailingPublisherRecordsAndFails(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp down")
	pub := NewFailing("mail", boom)
	if err := pub.Publish(context.Background(), publisher.Message{}); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if len(pub.Messages()) != 1 {
		t.Fatal("expected failed publish to be recorded")
	}
}
