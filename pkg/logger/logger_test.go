package logger

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger("", "")
	if l == nil {
		t.Fatal("Expected logger to be created, got nil")
	}
	l.SetConsole(io.Discard)

	// Logger methods must not panic
	l.Info("Test info message", "TEST")
	l.Warn("Test warning message", "TEST")
	l.Debug("Test debug message", "TEST")
	l.System("Test system message", "TEST")
	l.Success("Test success message", "TEST")

	l.Close()
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelCritical, "CRITICAL"},
		{LevelError, "ERROR"},
		{LevelWarn, "WARN"},
		{LevelSuccess, "SUCCESS"},
		{LevelInfo, "INFO"},
		{LevelDebug, "DEBUG"},
		{LevelSystem, "SYSTEM"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLogLevelWebhookColor(t *testing.T) {
	tests := []struct {
		level LogLevel
		color int
	}{
		{LevelCritical, 0xFF0000},
		{LevelError, 0xFF0000},
		{LevelWarn, 0xFFFF00},
		{LevelSuccess, 0x00FF00},
		{LevelInfo, 0x0000FF},
		{LevelDebug, 0x800080},
		{LevelSystem, 0x808080},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := tt.level.WebhookColor(); got != tt.color {
				t.Errorf("LogLevel.WebhookColor() = %v, want %v", got, tt.color)
			}
		})
	}
}

func TestConsoleFormat(t *testing.T) {
	l := NewLogger("", "")
	defer l.Close()

	var buf bytes.Buffer
	l.SetConsole(&buf)
	l.Warn("cupón agotado", "Coupons")

	line := buf.String()
	if !strings.Contains(line, "WARN") || !strings.Contains(line, "[Coupons]: cupón agotado") {
		t.Errorf("unexpected console line: %q", line)
	}
}

func TestErrorFileOnlyGetsErrors(t *testing.T) {
	logsDir := filepath.Join(".", "logs")
	os.RemoveAll(logsDir)

	l := NewLogger("", "")
	l.SetConsole(io.Discard)
	l.Info("solo informativo", "TEST")
	l.Error("algo falló", "TEST")
	l.Close()

	errorLog, err := os.ReadFile(filepath.Join(logsDir, "error.log"))
	if err != nil {
		t.Fatalf("reading error.log: %v", err)
	}
	if !strings.Contains(string(errorLog), "algo falló") {
		t.Error("expected error message in error.log")
	}
	if strings.Contains(string(errorLog), "solo informativo") {
		t.Error("info message leaked into error.log")
	}

	combined, err := os.ReadFile(filepath.Join(logsDir, "combined.log"))
	if err != nil {
		t.Fatalf("reading combined.log: %v", err)
	}
	if !strings.Contains(string(combined), "solo informativo") || !strings.Contains(string(combined), "prefix=TEST") {
		t.Errorf("unexpected combined.log content: %s", combined)
	}
}

func TestErrorWebhook(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
	}))
	defer srv.Close()

	l := NewLogger(srv.URL, "")
	defer l.Close()
	l.SetConsole(io.Discard)
	l.Info("no se envía", "TEST")
	l.Error("fallo de canje", "TEST")

	select {
	case body := <-received:
		if !strings.Contains(body, "fallo de canje") {
			t.Errorf("unexpected webhook body: %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error webhook was not called")
	}
}

func TestLogFileCreation(t *testing.T) {
	logsDir := filepath.Join(".", "logs")
	os.RemoveAll(logsDir)

	l := NewLogger("", "")
	defer l.Close()

	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		t.Error("Expected logs directory to be created")
	}
	if _, err := os.Stat(filepath.Join(logsDir, "combined.log")); os.IsNotExist(err) {
		t.Error("Expected combined.log to be created")
	}
	if _, err := os.Stat(filepath.Join(logsDir, "error.log")); os.IsNotExist(err) {
		t.Error("Expected error.log to be created")
	}
}

func TestGlobalLoggerInit(t *testing.T) {
	// Reset the global logger for this test
	logger = nil
	once = sync.Once{}

	l := Init("", "")
	if l == nil {
		t.Fatal("Expected Init to return a logger")
	}

	l2 := Init("different", "different")
	if l != l2 {
		t.Error("Expected Init to return the same logger on subsequent calls")
	}

	if l3 := Get(); l != l3 {
		t.Error("Expected Get to return the same logger")
	}

	l.Close()
}
