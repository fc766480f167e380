package models

import "time"

// DataTypeErrorNotification tags error records in the shared record table.
const DataTypeErrorNotification = "ErrorNotification"

// ErrorRecord is one persisted occurrence of a reported application error.
// AnalysisResult stays nil until an analysis run succeeds.
type ErrorRecord struct {
	ID             string    `json:"id"`
	RootFeature    string    `json:"root_feature"`
	Feature        string    `json:"feature"`
	Message        string    `json:"message"`
	Stack          string    `json:"stack"`
	AnalysisResult *string   `json:"analysis_result,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasAnalysis reports whether an analysis result has been written.
func (r *ErrorRecord) HasAnalysis() bool {
	return r.AnalysisResult != nil
}

// ErrorRecordUpdate is a partial update; nil fields are left untouched.
type ErrorRecordUpdate struct {
	AnalysisResult *string
}

// RawErrorPayload is a candidate error decoded from one log event of a batch.
type RawErrorPayload struct {
	EventID   string `json:"-"`
	Timestamp int64  `json:"-"`

	ID          string `json:"id,omitempty"`
	RootFeature string `json:"rootFeature"`
	Feature     string `json:"feature"`
	Message     string `json:"message"`
	Stack       string `json:"stack"`
	Create      int64  `json:"create,omitempty"`
	Update      int64  `json:"update,omitempty"`
}
