package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"pushwatch/internal"
)

const provider = "github"

// GitHub delivery headers.
const (
	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"
)

// HandlerConfig carries the endpoint settings a GitHubHandler needs from the
// application config.
type HandlerConfig struct {
	Secret       string
	DefaultTopic string
	MaxBodyBytes int64
}

// GitHubHandler receives GitHub push webhooks on a single endpoint: it
// verifies the delivery signature, classifies the changed files of push
// events, answers the sender with the classification, and fans the result
// out through the publisher.
type GitHubHandler struct {
	pipeline     *internal.Pipeline
	rules        *internal.RuleEngine
	publisher    internal.Publisher
	logger       *log.Logger
	defaultTopic string
	maxBody      int64
}

// NewGitHubHandler builds the handler. rules and publisher may be nil, which
// disables fan-out; a nil logger falls back to the component default.
func NewGitHubHandler(cfg HandlerConfig, rules *internal.RuleEngine, publisher internal.Publisher, logger *log.Logger) *GitHubHandler {
	if logger == nil {
		logger = internal.NewLogger("github")
	}
	return &GitHubHandler{
		pipeline:     internal.NewPipeline(internal.NewVerifier(cfg.Secret), logger),
		rules:        rules,
		publisher:    publisher,
		logger:       logger,
		defaultTopic: cfg.DefaultTopic,
		maxBody:      cfg.MaxBodyBytes,
	}
}

func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest(provider)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	rawBody, err := io.ReadAll(body)
	if err != nil {
		h.logger.Printf("github body read failed: %v", err)
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	delivery := internal.Delivery{
		Body:      rawBody,
		Event:     r.Header.Get(eventHeader),
		Signature: r.Header.Get(signatureHeader),
		ID:        r.Header.Get(deliveryHeader),
	}

	result := h.pipeline.Process(delivery)
	internal.IncDelivery(result.Code)

	switch result.Code {
	case internal.ResultUnauthorized:
		h.logger.Printf("github delivery %q rejected: signature verification failed (signature present: %t)",
			delivery.ID, delivery.Signature != "")
		writeError(w, http.StatusUnauthorized, "signature verification failed")
	case internal.ResultBadPayload:
		h.logger.Printf("github delivery %q rejected: %v", delivery.ID, result.Err)
		writeError(w, http.StatusBadRequest, "unparseable payload")
	case internal.ResultIgnored:
		writeJSON(w, http.StatusOK, ignoredResponse{
			Message:    fmt.Sprintf("ignoring event type %q", delivery.Event),
			DeliveryID: delivery.ID,
			Processed:  false,
		})
	case internal.ResultProcessed:
		event := internal.Event{
			Provider:     provider,
			Name:         delivery.Event,
			DeliveryID:   delivery.ID,
			Repository:   result.Event.Repository.FullName,
			Branch:       result.Event.Branch(),
			ChangedFiles: result.Files,
			Interest:     result.Interest,
			RawPayload:   rawBody,
		}
		h.emit(r, event)
		writeJSON(w, http.StatusOK, processedResponse{
			Message:      "push processed",
			DeliveryID:   delivery.ID,
			Processed:    true,
			Repository:   event.Repository,
			Branch:       event.Branch,
			ChangedFiles: event.ChangedFiles,
			Flags:        result.Interest,
		})
	default:
		h.logger.Printf("github delivery %q failed: %v", delivery.ID, result.Err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// emit routes the processed event: matched rules pick the topics and driver
// subsets, or the default topic takes everything when no rules are
// configured. Publish failures are logged and counted, never surfaced to the
// sender; the delivery was already accepted.
func (h *GitHubHandler) emit(r *http.Request, event internal.Event) {
	if h.publisher == nil {
		return
	}

	var matches []internal.RuleMatch
	if h.rules == nil || h.rules.Empty() {
		if h.defaultTopic != "" {
			matches = []internal.RuleMatch{{Topic: h.defaultTopic}}
		}
	} else {
		matches = h.rules.Evaluate(event)
	}
	if len(matches) == 0 {
		return
	}

	topics := make([]string, len(matches))
	for i, match := range matches {
		topics[i] = match.Topic
	}
	h.logger.Printf("event provider=%s name=%s delivery=%s topics=%v", event.Provider, event.Name, event.DeliveryID, topics)

	for _, match := range matches {
		if err := h.publisher.PublishForDrivers(r.Context(), match.Topic, event, match.Drivers); err != nil {
			h.logger.Printf("publish %s failed: %v", match.Topic, err)
		}
	}
}

type processedResponse struct {
	Message      string            `json:"message"`
	DeliveryID   string            `json:"delivery_id"`
	Processed    bool              `json:"processed"`
	Repository   string            `json:"repository"`
	Branch       string            `json:"branch"`
	ChangedFiles []string          `json:"changed_files"`
	Flags        internal.Interest `json:"flags"`
}

type ignoredResponse struct {
	Message    string `json:"message"`
	DeliveryID string `json:"delivery_id"`
	Processed  bool   `json:"processed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
