package stream

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

// --- attribute helpers ---

func TestGetStringAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"id":         events.NewStringAttribute("c-1"),
		"collection": events.NewStringAttribute("日本語"),
		"created_at": events.NewNumberAttribute("42"),
		"deleted":    events.NewNullAttribute(),
	}

	tests := []struct {
		attr     string
		expected string
	}{
		{"id", "c-1"},
		{"collection", "日本語"},
		{"created_at", ""},
		{"deleted", ""},
		{"missing", ""},
	}
	for _, tt := range tests {
		if got := getStringAttr(image, tt.attr); got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.attr, tt.expected, got)
		}
	}

	if got := getStringAttr(nil, "id"); got != "" {
		t.Errorf("expected empty string for nil image, got %q", got)
	}
}

func TestGetNumberAttr(t *testing.T) {
	image := map[string]events.DynamoDBAttributeValue{
		"created_at": events.NewNumberAttribute("1700000000000000001"),
		"ttl":        events.NewNumberAttribute("1234567890"),
		"id":         events.NewStringAttribute("not-a-number"),
		"broken":     events.NewNumberAttribute("1.5e"),
	}

	tests := []struct {
		attr     string
		expected int64
	}{
		{"created_at", 1700000000000000001},
		{"ttl", 1234567890},
		{"id", 0},
		{"broken", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := getNumberAttr(image, tt.attr); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.attr, tt.expected, got)
		}
	}
}

// --- tableFromARN Tests ---

func TestTableFromARN(t *testing.T) {
	tests := []struct {
		arn      string
		expected string
	}{
		{"arn:aws:dynamodb:us-east-1:123456789012:table/crm/stream/2024-01-01T00:00:00.000", "crm"},
		{"arn:aws:dynamodb:us-east-1:123456789012:table/prod-users", "prod-users"},
		{"", ""},
		{"arn:aws:sqs:us-east-1:123456789012:queue", ""},
	}

	for _, tt := range tests {
		if got := tableFromARN(tt.arn); got != tt.expected {
			t.Errorf("tableFromARN(%q): expected %q, got %q", tt.arn, tt.expected, got)
		}
	}
}

// --- isTTLDelete Tests ---

func TestIsTTLDelete(t *testing.T) {
	tests := []struct {
		name     string
		identity *events.DynamoDBUserIdentity
		expected bool
	}{
		{"ttl service", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"}, true},
		{"no identity", nil, false},
		{"other service", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "lambda.amazonaws.com"}, false},
		{"user", &events.DynamoDBUserIdentity{Type: "User", PrincipalID: "dynamodb.amazonaws.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := events.DynamoDBEventRecord{EventName: "REMOVE", UserIdentity: tt.identity}
			if got := isTTLDelete(record); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
