package logstream

import (
	"bytes"
	"io"
	"sync"
)

// StreamWriter is an io.Writer that copies output to a buffer and publishes
// each complete line to a broker topic.
type StreamWriter struct {
	topic  string
	broker *LogBroker
	buffer io.Writer

	mu      sync.Mutex
	partial []byte
}

// NewStreamWriter creates a writer that broadcasts to the broker and writes to a buffer
func NewStreamWriter(topic string, broker *LogBroker, buffer io.Writer) *StreamWriter {
	return &StreamWriter{
		topic:  topic,
		broker: broker,
		buffer: buffer,
	}
}

// Write implements io.Writer interface
func (w *StreamWriter) Write(p []byte) (n int, err error) {
	if w.buffer != nil {
		n, err = w.buffer.Write(p)
		if err != nil {
			return n, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.broker.Publish(w.topic, string(bytes.TrimRight(w.partial[:i], "\r")))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Flush publishes any trailing output that did not end with a newline.
func (w *StreamWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.broker.Publish(w.topic, string(w.partial))
		w.partial = nil
	}
}
