package argocd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/otterscale/otterscale-tasks/internal/core"
)

// maxEventSize caps a single event line.
const maxEventSize = 16 << 20

// stream decodes newline-delimited watch events from a response body.
type stream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	cancel    context.CancelFunc
	transport *http.Transport
	events    metric.Int64Counter

	closeOnce sync.Once
	closeErr  error
}

func newStream(body io.ReadCloser, cancel context.CancelFunc, transport *http.Transport, events metric.Int64Counter) *stream {
	return &stream{
		body:      body,
		reader:    bufio.NewReaderSize(body, 64*1024),
		cancel:    cancel,
		transport: transport,
		events:    events,
	}
}

var _ core.ApplicationStream = (*stream)(nil)

func (s *stream) Next() (*core.WatchEvent, error) {
	for {
		line, err := s.readLine()
		// A failure part way through a line is a read failure, not a
		// malformed event. Only a clean EOF may leave a final
		// unterminated line to decode.
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var ev core.WatchEvent
		if uerr := json.Unmarshal(line, &ev); uerr != nil {
			return nil, &core.ErrMissingData{Reason: "malformed event", Cause: uerr}
		}
		s.events.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", eventType(&ev))))
		return &ev, nil
	}
}

// readLine returns the next line including its delimiter. Unlike
// bufio.Reader.ReadLine it keeps the read error that cut a line short.
func (s *stream) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxEventSize {
			return nil, &core.ErrMissingData{Reason: "event exceeds size limit"}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}

// Close cancels the request first so that a blocked read returns,
// then releases the body and the dedicated transport.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.body.Close()
		s.transport.CloseIdleConnections()
	})
	return s.closeErr
}

func eventType(ev *core.WatchEvent) string {
	switch {
	case ev.Error != nil:
		return "ERROR"
	case ev.Result != nil && ev.Result.Type != "":
		return ev.Result.Type
	default:
		return "UNKNOWN"
	}
}
