package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	notificationTitle = "Error Notification"
	defaultIcon       = "/logo.png"
)

// Delivery statuses.
const (
	StatusDelivered = "delivered"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Transport sends one rendered push message to one subscription.
type Transport interface {
	Send(ctx context.Context, endpoint, message string, sub models.PushSubscription) error
}

// Directory is what the dispatcher needs from a SubscriberDirectory.
type Directory interface {
	ResolveRecipients(ctx context.Context) ([]string, error)
	ResolveSubscription(ctx context.Context, terminalID string) (*models.Subscription, bool, error)
}

// DeliveryError wraps a failure to notify one terminal.
type DeliveryError struct {
	TerminalID string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to terminal %s: %v", e.TerminalID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type DeliveryResult struct {
	TerminalID string `json:"terminal_id"`
	Status     string `json:"status"`
	Err        error  `json:"-"`
}

// DispatchReport lists one result per recipient, in recipient order.
type DispatchReport struct {
	RecordID string           `json:"record_id"`
	Results  []DeliveryResult `json:"results"`
}

// Count returns how many results have status.
func (r *DispatchReport) Count(status string) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

type DispatcherConfig struct {
	Endpoint    string
	Icon        string
	Concurrency int
}

// Dispatcher fans a notification out to every recipient on a bounded pool.
type Dispatcher struct {
	directory Directory
	transport Transport
	cfg       DispatcherConfig
}

func NewDispatcher(directory Directory, transport Transport, cfg DispatcherConfig) *Dispatcher {
	if cfg.Icon == "" {
		cfg.Icon = defaultIcon
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Dispatcher{directory: directory, transport: transport, cfg: cfg}
}

// BuildPayload renders the push payload for a record id.
func BuildPayload(recordID, icon string) models.PushPayload {
	return models.PushPayload{
		Title: notificationTitle,
		Body:  "Error Occurred with ID: " + recordID,
		Icon:  icon,
		Data:  models.PushPayloadData{ID: recordID},
	}
}

// Notify sends a push notification about record to every registered terminal.
// It fails only when recipients cannot be resolved; per-terminal failures are
// reported in the DispatchReport and never affect other terminals.
func (d *Dispatcher) Notify(ctx context.Context, record *models.ErrorRecord) (*DispatchReport, error) {
	recipients, err := d.directory.ResolveRecipients(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	report := &DispatchReport{RecordID: record.ID, Results: make([]DeliveryResult, len(recipients))}
	if len(recipients) == 0 {
		return report, nil
	}

	message, err := json.Marshal(BuildPayload(record.ID, d.cfg.Icon))
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, terminalID := range recipients {
		g.Go(func() error {
			report.Results[i] = d.deliver(ctx, terminalID, string(message))
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range report.Results {
		if res.Status == StatusFailed {
			slog.Warn("push delivery failed", "record_id", record.ID, "terminal_id", res.TerminalID, "error", res.Err)
		}
	}

	slog.Info("notification dispatched",
		"record_id", record.ID,
		"recipients", len(recipients),
		"delivered", report.Count(StatusDelivered),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed),
	)
	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, terminalID, message string) DeliveryResult {
	res := DeliveryResult{TerminalID: terminalID}

	sub, ok, err := d.directory.ResolveSubscription(ctx, terminalID)
	if err != nil {
		res.Status = StatusFailed
		res.Err = &DeliveryError{TerminalID: terminalID, Err: err}
		return res
	}
	if !ok {
		res.Status = StatusSkipped
		return res
	}

	if err := d.transport.Send(ctx, d.cfg.Endpoint, message, sub.Subscription); err != nil {
		res.Status = StatusFailed
		res.Err = &DeliveryError{TerminalID: terminalID, Err: err}
		return res
	}

	res.Status = StatusDelivered
	return res
}
