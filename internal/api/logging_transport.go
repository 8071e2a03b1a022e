package api

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and appends request/response
// dumps to a log file. Used when LogApiRequests is enabled.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

var (
	openTransportsMu sync.Mutex
	openTransports   []*LoggingTransport
)

// NewLoggingTransport creates a new LoggingTransport.
// It opens the specified log file for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	openTransportsMu.Lock()
	openTransports = append(openTransports, t)
	openTransportsMu.Unlock()

	return t, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
		// Proceed with the request anyway
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s\n", startTime.Format(time.RFC3339), string(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)

	duration := time.Since(startTime)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s\n", time.Now().Format(time.RFC3339), duration, err.Error()))
	} else {
		// Media payloads are huge, so only headers are logged for non-JSON
		// responses; JSON API responses are dumped in full.
		contentType := resp.Header.Get("Content-Type")
		dumpBody := strings.HasPrefix(contentType, "application/json")

		respDump, dumpErr := httputil.DumpResponse(resp, dumpBody)
		if dumpErr != nil {
			log.WithError(dumpErr).Error("Failed to dump API response for logging")
			t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v) ---\nStatus: %s\n(Failed to dump response)\n", time.Now().Format(time.RFC3339), duration, resp.Status))
		} else {
			t.writeLog(fmt.Sprintf("--- Response (%s, Duration: %v, Type: %s) ---\n%s\n", time.Now().Format(time.RFC3339), duration, contentType, string(respDump)))
		}
	}

	// Ensure logs are written
	t.writer.Flush()

	return resp, err
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	_, err := t.writer.WriteString(logString + "\n\n")
	if err != nil {
		// Log to stderr if writing to file fails
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\nLog message: %s\n", err, logString)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush() // Ensure buffer is flushed before closing
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport opened through
// NewLoggingTransport. Called on application exit.
func CloseAllLoggingTransports() {
	openTransportsMu.Lock()
	transports := openTransports
	openTransports = nil
	openTransportsMu.Unlock()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
	}
}
