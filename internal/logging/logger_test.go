package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   LogLevel
	}{
		{
			name: "default config",
			config: Config{
				Level:  LogLevelNormal,
				Format: "text",
			},
			want: LogLevelNormal,
		},
		{
			name: "verbose config",
			config: Config{
				Level:  LogLevelVerbose,
				Format: "json",
			},
			want: LogLevelVerbose,
		},
		{
			name: "quiet config",
			config: Config{
				Level:  LogLevelQuiet,
				Format: "text",
			},
			want: LogLevelQuiet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Output = &buf

			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Errorf("NewLogger() error = %v", err)
				return
			}

			if logger.GetLevel() != tt.want {
				t.Errorf("NewLogger() level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	if logger == nil {
		t.Error("NewDefaultLogger() returned nil")
	}

	if logger.GetLevel() != LogLevelNormal {
		t.Errorf("NewDefaultLogger() level = %v, want %v", logger.GetLevel(), LogLevelNormal)
	}
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger == nil {
		t.Fatal("NewNopLogger() returned nil")
	}

	// Nothing observable to assert beyond not panicking
	logger.Info("discarded")
	logger.Errorf("also %s", "discarded")
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	fields := map[string]interface{}{
		"test_field": "test_value",
		"number":     42,
	}

	logger.WithFields(fields).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test_field=test_value") {
		t.Errorf("Expected output to contain test_field=test_value, got: %s", output)
	}
	if !strings.Contains(output, "number=42") {
		t.Errorf("Expected output to contain number=42, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestLoggerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.WithComponent("lvm").Info("snapshot created")

	output := buf.String()
	if !strings.Contains(output, "component=lvm") {
		t.Errorf("Expected output to contain component=lvm, got: %s", output)
	}
}

func TestLogCommandExecution(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	// Test successful execution
	logger.LogCommandExecution([]string{"/usr/bin/rdiff-backup", "--version"}, "localhost", 100*time.Millisecond, 0, nil)
	output := buf.String()
	if !strings.Contains(output, "Command executed successfully") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "host=localhost") {
		t.Errorf("Expected host=localhost, got: %s", output)
	}

	// Reset buffer
	buf.Reset()

	// Test failed execution
	testErr := errors.New("exit status 1")
	logger.LogCommandExecution([]string{"/bin/false"}, "webserver1", 5*time.Second, 1, testErr)
	output = buf.String()
	if !strings.Contains(output, "Command execution failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "exit status 1") {
		t.Errorf("Expected error message, got: %s", output)
	}
	if !strings.Contains(output, "exit_code=1") {
		t.Errorf("Expected exit_code=1, got: %s", output)
	}
}

func TestLogHookExecution(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogHookExecution("pre", 10, "create lvm snapshots", 50*time.Millisecond, nil)
	output := buf.String()
	if !strings.Contains(output, "Hook executed successfully") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "phase=pre") {
		t.Errorf("Expected phase=pre, got: %s", output)
	}

	// Reset buffer
	buf.Reset()

	testErr := errors.New("mount failed")
	logger.LogHookExecution("post", 90, "remove lvm snapshots", 10*time.Millisecond, testErr)
	output = buf.String()
	if !strings.Contains(output, "Hook execution failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "mount failed") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestLogStateTransition(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogStateTransition("mybackup", "Idle", "RunningPreHooks")
	output := buf.String()
	if !strings.Contains(output, "Workflow state changed") {
		t.Errorf("Expected state change message, got: %s", output)
	}
	if !strings.Contains(output, "job=mybackup") {
		t.Errorf("Expected job=mybackup, got: %s", output)
	}
	if !strings.Contains(output, "to=RunningPreHooks") {
		t.Errorf("Expected to=RunningPreHooks, got: %s", output)
	}
}

func TestLogSnapshotOperation(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelNormal,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.LogSnapshotOperation("lvm_snapshot_create", "vg0/root", nil)
	output := buf.String()
	if !strings.Contains(output, "Snapshot operation completed") {
		t.Errorf("Expected success message, got: %s", output)
	}
	if !strings.Contains(output, "target=vg0/root") {
		t.Errorf("Expected target=vg0/root, got: %s", output)
	}

	// Reset buffer
	buf.Reset()

	testErr := errors.New("insufficient free space")
	logger.LogSnapshotOperation("lvm_snapshot_create", "vg0/home", testErr)
	output = buf.String()
	if !strings.Contains(output, "Snapshot operation failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "insufficient free space") {
		t.Errorf("Expected error message, got: %s", output)
	}
}

func TestSetLevel(t *testing.T) {
	logger := NewDefaultLogger()

	logger.SetLevel(LogLevelVerbose)
	if logger.GetLevel() != LogLevelVerbose {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelVerbose)
	}

	logger.SetLevel(LogLevelQuiet)
	if logger.GetLevel() != LogLevelQuiet {
		t.Errorf("SetLevel() failed, got %v, want %v", logger.GetLevel(), LogLevelQuiet)
	}
}

func TestIsLevelEnabled(t *testing.T) {
	tests := []struct {
		name        string
		loggerLevel LogLevel
		testLevel   LogLevel
		want        bool
	}{
		{"quiet logger, error level", LogLevelQuiet, LogLevelQuiet, true},
		{"quiet logger, normal level", LogLevelQuiet, LogLevelNormal, false},
		{"normal logger, normal level", LogLevelNormal, LogLevelNormal, true},
		{"normal logger, verbose level", LogLevelNormal, LogLevelVerbose, false},
		{"verbose logger, verbose level", LogLevelVerbose, LogLevelVerbose, true},
		{"verbose logger, debug level", LogLevelVerbose, LogLevelDebug, false},
		{"debug logger, debug level", LogLevelDebug, LogLevelDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			config := Config{
				Level:  tt.loggerLevel,
				Output: &buf,
				Format: "text",
			}

			logger, err := NewLogger(config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if got := logger.IsLevelEnabled(tt.testLevel); got != tt.want {
				t.Errorf("IsLevelEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogOperationStart(t *testing.T) {
	var buf bytes.Buffer
	config := Config{
		Level:  LogLevelVerbose,
		Output: &buf,
		Format: "text",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	fields := map[string]interface{}{
		"job":   "mybackup",
		"hooks": 3,
	}

	finishFunc := logger.LogOperationStart("backup_run", fields)

	// Check start message
	output := buf.String()
	if !strings.Contains(output, "Operation started") {
		t.Errorf("Expected start message, got: %s", output)
	}
	if !strings.Contains(output, "job=mybackup") {
		t.Errorf("Expected job=mybackup, got: %s", output)
	}

	// Reset buffer
	buf.Reset()

	// Test successful completion
	finishFunc(nil)
	output = buf.String()
	if !strings.Contains(output, "Operation completed") {
		t.Errorf("Expected completion message, got: %s", output)
	}
	if !strings.Contains(output, "success=true") {
		t.Errorf("Expected success=true, got: %s", output)
	}

	// Reset buffer
	buf.Reset()

	// Test failed completion
	finishFunc2 := logger.LogOperationStart("backup_run_2", fields)
	buf.Reset() // Clear start message

	testErr := errors.New("transfer failed")
	finishFunc2(testErr)
	output = buf.String()
	if !strings.Contains(output, "Operation failed") {
		t.Errorf("Expected failure message, got: %s", output)
	}
	if !strings.Contains(output, "success=false") {
		t.Errorf("Expected success=false, got: %s", output)
	}
	if !strings.Contains(output, "transfer failed") {
		t.Errorf("Expected error message, got: %s", output)
	}
}
