package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromContextCarriesAttrs(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(previous)

	ctx := WithAttrs(context.Background(), "document_id", "doc-1")
	ctx = WithAttrs(ctx, "stage", "extract")
	FromContext(ctx).Info("stage_started")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log record: %v", err)
	}
	if record["document_id"] != "doc-1" || record["stage"] != "extract" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != slog.LevelWarn {
		t.Fatalf("expected warn level")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatalf("expected info level by default")
	}
}
