package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogWritesGCPEntry(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	ctx := WithTraceID(context.Background(), "trace-123")
	Warning(ctx, "回覆目標不存在",
		WithUserID("u1"),
		WithGroupID("g1"),
		WithAction("send_message"),
		WithError(errors.New("not found")),
		WithDetails(map[string]interface{}{"reply_to": "m9"}))

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("日誌不是有效 JSON: %v (%s)", err, buf.String())
	}

	if entry.Severity != SeverityWarning {
		t.Errorf("severity = %s, 預期 WARNING", entry.Severity)
	}
	if entry.GroupID != "g1" || entry.UserID != "u1" || entry.Action != "send_message" {
		t.Errorf("自定義欄位錯誤: %+v", entry)
	}
	if entry.Error != "not found" {
		t.Errorf("error = %q", entry.Error)
	}
	if !strings.HasSuffix(entry.TraceID, "/traces/trace-123") {
		t.Errorf("trace = %q", entry.TraceID)
	}
	if entry.SourceLocation == nil || entry.SourceLocation.File != "logger_test.go" {
		t.Errorf("sourceLocation 應指向呼叫者: %+v", entry.SourceLocation)
	}
	if entry.InsertID == "" {
		t.Error("insertId 不應為空")
	}
}

func TestGetTraceIDWithoutTrace(t *testing.T) {
	if got := GetTraceID(context.Background()); got != "" {
		t.Errorf("預期空 trace，得到 %q", got)
	}
}
