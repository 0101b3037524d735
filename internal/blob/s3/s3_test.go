package s3blob

import (
	"context"
	"testing"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"e2.idrivee2.com", true, "https://e2.idrivee2.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "journal/run/1.jsonl", "journal/run/1.jsonl"},
		{"spreadbot/prod", "/journal/run/1.jsonl", "spreadbot/prod/journal/run/1.jsonl"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.path); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.path, got, tt.want)
		}
	}
}

func TestNewValidates(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, ClientConfig{Region: "us-east-1"}); err == nil {
		t.Error("missing bucket accepted")
	}
	if _, err := New(ctx, ClientConfig{Bucket: "b"}); err == nil {
		t.Error("missing region accepted")
	}
}

func TestNewAppliesPrefix(t *testing.T) {
	c, err := New(context.Background(), ClientConfig{
		Bucket: "journal", Region: "us-east-1", Endpoint: "localhost:9000",
		AccessKey: "a", SecretKey: "b", Prefix: "/bots/", ForcePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.ObjectKey("x.jsonl"); got != "bots/x.jsonl" {
		t.Errorf("ObjectKey = %q", got)
	}
	if c.Bucket() != "journal" {
		t.Errorf("Bucket = %q", c.Bucket())
	}
	if NewWriter(c, 0).uploader.PartSize != minPartSize {
		t.Error("part size not clamped")
	}
}
