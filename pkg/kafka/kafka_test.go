package kafka

import (
	"context"
	"testing"
	"time"
)

type changed struct {
	Entity string   `json:"entity"`
	IDs    []string `json:"ids"`
}

func TestEncode(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := encode(Event{Key: "university", Value: changed{Entity: "university", IDs: []string{"aau"}}}, now)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "university" || !msg.Time.Equal(now) {
		t.Errorf("msg key=%q time=%v", msg.Key, msg.Time)
	}
	got, err := DecodeJSON[changed](msg.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got.Entity != "university" || len(got.IDs) != 1 || got.IDs[0] != "aau" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestEncodeRejectsUnmarshalableValues(t *testing.T) {
	if _, err := encode(Event{Key: "k", Value: make(chan int)}, time.Now()); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	var p Producer
	if err := p.PublishBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch error = %v", err)
	}
}

func TestDecodeJSONError(t *testing.T) {
	if _, err := DecodeJSON[changed]([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
