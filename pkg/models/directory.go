package models

// Data type tags for directory records in the shared record table.
const (
	DataTypeFeatureInfo  = "FeatureInfo"
	DataTypeAdmin        = "Admin"
	DataTypeSubscription = "Subscription"
)

// FeatureInfo maps a root feature (deployable unit) to the source location used as analysis context.
type FeatureInfo struct {
	RootFeature string `json:"rootFeature"`
	URL         string `json:"url"`
}

// FeatureInfoSet is one FeatureInfo record holding a list of entries.
type FeatureInfoSet struct {
	ID       string        `json:"id"`
	Features []FeatureInfo `json:"feature_info_list"`
}

// AdminRegistration lists the terminals (devices) an administrator receives notifications on.
type AdminRegistration struct {
	ID          string   `json:"id"`
	TerminalIDs []string `json:"terminal_id_list"`
}

// Subscription binds a terminal to its push-delivery subscription.
type Subscription struct {
	TerminalID   string           `json:"terminal_id"`
	Subscription PushSubscription `json:"subscription"`
}

// PushSubscription is the browser PushSubscription object, passed through opaquely.
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushPayload is the notification rendered by the client's service worker.
type PushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Icon  string          `json:"icon"`
	Data  PushPayloadData `json:"data"`
}

type PushPayloadData struct {
	ID string `json:"id"`
}
