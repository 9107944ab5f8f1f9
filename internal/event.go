package internal

// Event is the notification published after a push is processed. RawPayload
// carries the original delivery body for rule evaluation; it stays off the
// wire so subscribers see the classified summary, not a second copy of the
// webhook.
type Event struct {
	Provider     string   `json:"provider"`
	Name         string   `json:"name"`
	DeliveryID   string   `json:"delivery_id"`
	Repository   string   `json:"repository"`
	Branch       string   `json:"branch"`
	ChangedFiles []string `json:"changed_files"`
	Interest     Interest `json:"flags"`

	RawPayload []byte `json:"-"`
}
