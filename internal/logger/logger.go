// Package logger writes structured, redacted log lines for the
// bridge: downstream session lifecycle, per-line server stderr, and
// tool-call dispatch. Adapted from the teacher's internal/logger,
// trimmed to the surface this bridge actually calls: the ring-buffer/
// pub-sub machinery (Subscribe/Unsubscribe/GetLogs/ClearLogs) had no
// caller anywhere in this tree and is gone; a structured Field API
// took its place so internal/mcpclient and internal/server can attach
// server names, tool-call arguments, and raw stderr lines as redacted
// key/value pairs instead of interpolating them into the message
// string by hand.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// Field is one piece of structured context attached to a log line,
// e.g. the server name behind a session event or the raw stderr text
// behind a DEBUG line. String values pass through the same redaction
// as the message.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field, named for brevity at call sites that attach
// several (F("server", name), F("timeout", timeout)).
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// LogEntry represents a single log record, including the sandbox/
// session context it carries.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	mu          sync.Mutex
	maxFileSize = int64(5 * 1024 * 1024) // 5MB limit
	logFilePath string
	logFile     *os.File
	logChan     = make(chan LogEntry, 100)
	done        chan struct{}
	workerDone  chan struct{}

	// Redaction regexes for secrets that might leak into tool call
	// arguments, server stderr, or sandbox output.
	apiKeyRegex = regexp.MustCompile(`\b(sk|pk)-[A-Za-z0-9_-]{16,}\b`)
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{16,}`)
)

// Init initializes the logging system.
func Init(appDir string) error {
	mu.Lock()
	defer mu.Unlock()

	logDir := filepath.Join(appDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("%s-bridge.log", time.Now().Format("20060102"))
	logFilePath = filepath.Join(logDir, logFileName)

	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f

	done = make(chan struct{})
	workerDone = make(chan struct{})
	go logWorker()

	return nil
}

func redact(s string) string {
	s = apiKeyRegex.ReplaceAllString(s, "$1-REDACTED")
	s = bearerRegex.ReplaceAllString(s, "Bearer REDACTED")
	return s
}

// AddLog records a log entry, redacting the message and any string
// field value before it reaches the console, the log file, or the
// field map returned to a caller that marshals this entry.
func AddLog(level, message string, fields ...Field) {
	message = redact(message)

	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]interface{}, len(fields))
		for _, field := range fields {
			if s, ok := field.Value.(string); ok {
				field.Value = redact(s)
			}
			entry.Fields[field.Key] = field.Value
		}
	}

	fmt.Fprintf(os.Stderr, "[%s] [%s] %s %s\n", entry.Timestamp, level, message, fieldsSuffix(entry.Fields))

	select {
	case logChan <- entry:
	default:
		// Drop log if channel is full to avoid blocking.
	}
}

func fieldsSuffix(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(data)
}

// Close flushes and closes the log file.
func Close() {
	if done != nil {
		close(done)
		if workerDone != nil {
			<-workerDone // Wait for worker to finish
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func logWorker() {
	defer close(workerDone)
	for {
		select {
		case entry := <-logChan:
			writeEntry(entry)
		case <-done:
			// Flush remaining logs
			for {
				select {
				case entry := <-logChan:
					writeEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func writeEntry(entry LogEntry) {
	mu.Lock()
	defer mu.Unlock()

	f := logFile
	if f == nil {
		return
	}

	// Check file size and truncate if needed (simple circular buffer strategy)
	if info, err := f.Stat(); err == nil && info.Size() > maxFileSize {
		f.Close()
		// Re-open with truncate
		f, err = os.OpenFile(logFilePath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			logFile = f
			truncateEntry := LogEntry{
				Timestamp: time.Now().Format(time.RFC3339),
				Level:     "INFO",
				Message:   "Log file reached 5MB limit and was truncated.",
			}
			data, _ := json.Marshal(truncateEntry)
			f.Write(data)
			f.Write([]byte("\n"))
		} else {
			return
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	f.Write(data)
	f.Write([]byte("\n"))
}
