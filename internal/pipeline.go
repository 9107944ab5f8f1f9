package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// pushEventType is the X-GitHub-Event value this service acts on.
const pushEventType = "push"

// ResultCode tags the outcome of processing one delivery. The HTTP handler
// maps codes to statuses exactly once; nothing inside the pipeline knows
// about transport.
type ResultCode int

const (
	ResultUnauthorized ResultCode = iota
	ResultBadPayload
	ResultIgnored
	ResultProcessed
	ResultFault
)

// String returns the metrics/log-friendly name of the code.
func (c ResultCode) String() string {
	switch c {
	case ResultUnauthorized:
		return "unauthorized"
	case ResultBadPayload:
		return "bad_payload"
	case ResultIgnored:
		return "ignored"
	case ResultProcessed:
		return "processed"
	case ResultFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Delivery is one raw webhook request lifted off the wire: the unmodified
// body plus the header values that drive processing. An empty Signature
// means the header was absent.
type Delivery struct {
	Body      []byte
	Event     string
	Signature string
	ID        string
}

// Result is the tagged outcome of a delivery. Event, Files and Interest are
// populated only for ResultProcessed. Err carries the internal diagnostic
// for rejected and faulted deliveries; it is for logs, never for the wire.
type Result struct {
	Code     ResultCode
	Event    PushEvent
	Files    []string
	Interest Interest
	Err      error
}

// Pipeline runs a delivery through verify, parse and classify. It is
// stateless across deliveries and safe for concurrent use.
type Pipeline struct {
	verifier *Verifier
	logger   *log.Logger
}

// NewPipeline builds a Pipeline around the given verifier. A nil logger
// falls back to the package default.
func NewPipeline(verifier *Verifier, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = NewLogger("pipeline")
	}
	return &Pipeline{verifier: verifier, logger: logger}
}

// Process classifies one delivery. The sequencing is fixed: signature check,
// then payload parse, then event-type gate, then file classification. Any
// panic below is recovered and reported as ResultFault, so a malformed
// delivery can never take the receiver down.
func (p *Pipeline) Process(d Delivery) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("recovered while processing delivery %q: %v", d.ID, r)
			result = Result{Code: ResultFault, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if p.verifier.Enabled() {
		if !p.verifier.Verify(d.Body, d.Signature) {
			return Result{Code: ResultUnauthorized, Err: errors.New("signature verification failed")}
		}
	} else {
		p.logger.Printf("warning: no webhook secret configured, accepting delivery %q unverified", d.ID)
	}

	var event PushEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return Result{Code: ResultBadPayload, Err: err}
	}

	if d.Event != pushEventType {
		return Result{Code: ResultIgnored}
	}

	if !event.Complete() {
		return Result{Code: ResultFault, Err: errors.New("push payload missing ref or repository full name")}
	}

	files := ChangedFiles(event)
	return Result{
		Code:     ResultProcessed,
		Event:    event,
		Files:    files,
		Interest: ClassifyInterest(files),
	}
}
