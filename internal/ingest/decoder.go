// Package ingest decodes compressed log batches into candidate error payloads.
package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/klauspost/compress/gzip"
)

// LogEvent is one entry of a log batch. Message carries the JSON-encoded error payload.
type LogEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// batchDocument is the decompressed envelope body. The extra fields are set by
// CloudWatch Logs subscriptions and are ignored except for MessageType.
type batchDocument struct {
	MessageType         string     `json:"messageType,omitempty"`
	Owner               string     `json:"owner,omitempty"`
	LogGroup            string     `json:"logGroup,omitempty"`
	LogStream           string     `json:"logStream,omitempty"`
	SubscriptionFilters []string   `json:"subscriptionFilters,omitempty"`
	LogEvents           []LogEvent `json:"logEvents"`
}

// controlMessage is sent by CloudWatch to test a destination; it carries no errors.
const controlMessage = "CONTROL_MESSAGE"

// Batch is the decoded content of one envelope.
type Batch struct {
	Payloads []models.RawErrorPayload
	Warnings []Warning
}

// Warning records a log event that was skipped.
type Warning struct {
	Index   int    `json:"index"`
	EventID string `json:"event_id,omitempty"`
	Reason  string `json:"reason"`
}

// Decode stage names used in DecodeError.
const (
	StageBase64 = "base64"
	StageGzip   = "gzip"
	StageJSON   = "json"
)

// DecodeError means the envelope as a whole could not be read. No event of the batch is processed.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns a base64, gzip-compressed log batch into raw error payloads in arrival order.
// Events whose message is not a usable JSON object are skipped with a Warning.
func Decode(envelope string) (*Batch, error) {
	envelope = strings.TrimSpace(envelope)
	if envelope == "" {
		return nil, &DecodeError{Stage: StageBase64, Err: fmt.Errorf("empty envelope")}
	}

	compressed, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, &DecodeError{Stage: StageBase64, Err: err}
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, &DecodeError{Stage: StageGzip, Err: err}
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, &DecodeError{Stage: StageGzip, Err: err}
	}

	var doc batchDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &DecodeError{Stage: StageJSON, Err: err}
	}

	batch := &Batch{Payloads: []models.RawErrorPayload{}}
	if doc.MessageType == controlMessage {
		return batch, nil
	}

	for i, ev := range doc.LogEvents {
		p, reason := decodeEvent(ev)
		if reason != "" {
			w := Warning{Index: i, EventID: ev.ID, Reason: reason}
			batch.Warnings = append(batch.Warnings, w)
			slog.Warn("log event skipped", "index", i, "event_id", ev.ID, "reason", reason)
			continue
		}
		batch.Payloads = append(batch.Payloads, p)
	}

	return batch, nil
}

func decodeEvent(ev LogEvent) (models.RawErrorPayload, string) {
	var p models.RawErrorPayload

	trimmed := strings.TrimSpace(ev.Message)
	if !strings.HasPrefix(trimmed, "{") {
		return p, "message is not a JSON object"
	}
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return p, fmt.Sprintf("invalid message JSON: %v", err)
	}
	if p.RootFeature == "" && p.Message == "" {
		return p, "message has neither rootFeature nor message"
	}

	p.EventID = ev.ID
	p.Timestamp = ev.Timestamp
	return p, ""
}

// Encode builds an envelope from events: JSON, gzip, then base64.
func Encode(events []LogEvent) (string, error) {
	if events == nil {
		events = []LogEvent{}
	}
	doc, err := json.Marshal(batchDocument{MessageType: "DATA_MESSAGE", LogEvents: events})
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return "", fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress batch: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodePayloads wraps each payload in a log event and encodes the batch.
// Event ids and timestamps come from the payload when set.
func EncodePayloads(payloads []models.RawErrorPayload) (string, error) {
	events := make([]LogEvent, 0, len(payloads))
	for i, p := range payloads {
		msg, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("marshal payload %d: %w", i, err)
		}
		id := p.EventID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		events = append(events, LogEvent{ID: id, Timestamp: p.Timestamp, Message: string(msg)})
	}
	return Encode(events)
}

// cloudWatchEvent is the shape delivered by a CloudWatch Logs subscription.
type cloudWatchEvent struct {
	AWSLogs *struct {
		Data string `json:"data"`
	} `json:"awslogs"`
}

// ParseCloudWatchEvent extracts the envelope from a subscription event body.
// A body that is a JSON string is returned as the envelope itself.
func ParseCloudWatchEvent(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", &DecodeError{Stage: StageJSON, Err: fmt.Errorf("empty request body")}
	}

	if body[0] == '"' {
		var envelope string
		if err := json.Unmarshal(body, &envelope); err != nil {
			return "", &DecodeError{Stage: StageJSON, Err: err}
		}
		return envelope, nil
	}

	var ev cloudWatchEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return "", &DecodeError{Stage: StageJSON, Err: err}
	}
	if ev.AWSLogs == nil || ev.AWSLogs.Data == "" {
		return "", &DecodeError{Stage: StageJSON, Err: fmt.Errorf("missing awslogs.data")}
	}
	return ev.AWSLogs.Data, nil
}
