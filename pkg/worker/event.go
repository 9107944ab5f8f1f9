package worker

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Event is a classified push notification consumed from a topic. The JSON
// fields mirror what the receiver publishes; Topic, Metadata, and Payload are
// filled from the broker message instead.
type Event struct {
	// Provider is the hosting provider the delivery came from (e.g. "github").
	Provider string `json:"provider"`
	// Name is the webhook event name that produced the notification.
	Name string `json:"name"`
	// DeliveryID is the provider-assigned delivery identifier.
	DeliveryID string `json:"delivery_id"`
	// Repository is the owner/name slug of the pushed repository.
	Repository string `json:"repository"`
	// Branch is the short branch name the push landed on.
	Branch string `json:"branch"`
	// ChangedFiles lists the distinct paths touched by the push.
	ChangedFiles []string `json:"changed_files"`
	// Flags reports which watched file groups the push touched.
	Flags Flags `json:"flags"`

	// Topic is the topic the message arrived on.
	Topic string `json:"-"`
	// Metadata carries the broker metadata attached to the message.
	Metadata map[string]string `json:"-"`
	// Payload is the raw message body as published.
	Payload json.RawMessage `json:"-"`
}

// Flags is the per-delivery classification of changed files.
type Flags struct {
	FrontendAsset      bool `json:"frontend_asset"`
	DependencyManifest bool `json:"dependency_manifest"`
	ConfigFile         bool `json:"config_file"`
	ContainerFile      bool `json:"container_file"`
}

// Any reports whether at least one flag is set.
func (f Flags) Any() bool {
	return f.FrontendAsset || f.DependencyManifest || f.ConfigFile || f.ContainerFile
}

// Codec decodes broker messages into Events.
type Codec interface {
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec decodes the JSON notification the receiver publishes, falling
// back to message metadata for fields an older payload may lack.
type DefaultCodec struct{}

// Decode unmarshals a Watermill message into an Event.
func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	if evt.Provider == "" {
		evt.Provider = msg.Metadata.Get("provider")
	}
	if evt.Name == "" {
		evt.Name = msg.Metadata.Get("event")
	}
	if evt.DeliveryID == "" {
		evt.DeliveryID = msg.Metadata.Get("delivery_id")
	}

	evt.Topic = topic
	evt.Metadata = metadata
	evt.Payload = json.RawMessage(msg.Payload)
	return &evt, nil
}
