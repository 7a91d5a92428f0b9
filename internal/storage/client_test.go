package storage

import "testing"

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(Config{Bucket: "outputs"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := NewClient(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}

	client, err := NewClient(Config{Endpoint: "localhost:9000", Access: "a", Secret: "b", Bucket: "outputs"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.bucket != "outputs" {
		t.Fatalf("expected bucket outputs, got %s", client.bucket)
	}
}
