package internal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	originalLevel := logLevel
	defer func() { logLevel = originalLevel }()

	SetLogLevel(LogLevelDebug)
	if logLevel != LogLevelDebug {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetLogLevel(LogLevelError)
	if logLevel != LogLevelError {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelError", logLevel)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLevel := logLevel
	defer func() { logLevel = originalLevel }()

	SetVerbose(true)
	if logLevel != LogLevelDebug {
		t.Errorf("SetVerbose(true) logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetVerbose(false)
	if logLevel != LogLevelWarn {
		t.Errorf("SetVerbose(false) logLevel = %v, want LogLevelWarn", logLevel)
	}
}

func TestLogFunctions(t *testing.T) {
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer func() {
		logLevel = originalLevel
		SetLogOutput(os.Stderr)
	}()

	SetLogLevel(LogLevelWarn)
	LogError("test error message")
	LogWarn("test warning %d", 42)
	LogInfo("test info message")
	LogDebug("test debug message")

	out := buf.String()
	if !strings.Contains(out, "[ERROR] test error message") {
		t.Errorf("missing error line in %q", out)
	}
	if !strings.Contains(out, "[WARN] test warning 42") {
		t.Errorf("missing warn line in %q", out)
	}
	if strings.Contains(out, "[INFO]") || strings.Contains(out, "[DEBUG]") {
		t.Errorf("info/debug should be filtered at warn level, got %q", out)
	}
}

func TestLogToFile(t *testing.T) {
	originalLevel := logLevel
	defer func() {
		logLevel = originalLevel
		SetLogOutput(os.Stderr)
	}()
	SetLogLevel(LogLevelWarn)

	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	restore, err := LogToFile(path)
	if err != nil {
		t.Fatalf("LogToFile() error = %v", err)
	}
	LogWarn("reconnecting to %s", "gateway")
	restore()

	var buf bytes.Buffer
	SetLogOutput(&buf)
	LogWarn("after restore")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[WARN] reconnecting to gateway") {
		t.Errorf("log file = %q, want the warning", data)
	}
	if strings.Contains(string(data), "after restore") {
		t.Errorf("log file should not receive output after restore, got %q", data)
	}
}

func TestLogToFile_Error(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LogToFile(filepath.Join(blocker, "chat.log")); err == nil {
		t.Error("LogToFile() should fail when the directory cannot be created")
	}
}

func TestLogLevels(t *testing.T) {
	// Test that log levels are properly defined
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}
