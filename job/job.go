// Package job defines the print job data model shared by the spooler, the
// local HTTP API, and the remote command-center client.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders dispatch within the active queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns a lower-is-first ordering value for priority comparison.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the recognized priority values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Status is a position in the job lifecycle state machine.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusPrinting   Status = "printing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s is one of the lifecycle's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// InFlight reports whether s represents a job currently held in the
// spooler's current slot.
func (s Status) InFlight() bool {
	return s == StatusProcessing || s == StatusPrinting
}

// Payload is the print content descriptor. Exactly one variant must be set;
// Validate enforces this. The local API folds its pdf/pdfBase64 and
// pdfUrl/url request aliases into a single field each before building a
// Payload (see DESIGN.md).
type Payload struct {
	PDFBytes string `json:"pdfBytes,omitempty"` // raw or base64-encoded PDF
	PDFPath  string `json:"pdfPath,omitempty"`  // absolute path on the agent's filesystem
	PDFURL   string `json:"pdfUrl,omitempty"`   // URL to download over HTTP(S)
	HTML     string `json:"html,omitempty"`     // legacy: HTML content
	HTMLURL  string `json:"htmlUrl,omitempty"`  // legacy: HTML content to fetch
}

// ErrInvalidPayload is returned by Validate when zero or more than one
// payload variant is populated.
type ErrInvalidPayload struct {
	Reason string
}

func (e *ErrInvalidPayload) Error() string {
	if e.Reason == "" {
		return "invalid payload: exactly one payload variant must be set"
	}
	return "invalid payload: " + e.Reason
}

// Validate enforces the "exactly one variant" invariant from the data model.
func (p Payload) Validate() error {
	set := 0
	if p.PDFBytes != "" {
		set++
	}
	if p.PDFPath != "" {
		set++
	}
	if p.PDFURL != "" {
		set++
	}
	if p.HTML != "" {
		set++
	}
	if p.HTMLURL != "" {
		set++
	}
	if set == 0 {
		return &ErrInvalidPayload{Reason: "no payload variant set"}
	}
	if set > 1 {
		return &ErrInvalidPayload{Reason: "more than one payload variant set"}
	}
	return nil
}

// Margins describes page margins in the units the caller supplied them
// (typically points or inches; the agent never interprets the value, only
// forwards it to the platform print command where supported).
type Margins struct {
	Top    float64 `json:"top,omitempty"`
	Right  float64 `json:"right,omitempty"`
	Bottom float64 `json:"bottom,omitempty"`
	Left   float64 `json:"left,omitempty"`
}

// Options carries per-job print settings. PrintBackground is a pointer so
// Normalize can tell "caller omitted it" (nil, defaults to true) apart from
// "caller explicitly set it false".
type Options struct {
	PrinterName     string            `json:"printerName,omitempty"`
	Copies          int               `json:"copies,omitempty"`
	PageSize        string            `json:"pageSize,omitempty"`
	Margins         *Margins          `json:"margins,omitempty"`
	PrintBackground *bool             `json:"printBackground,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// PrintsBackground reports the effective printBackground setting, treating
// an unset value as true (the default). Safe to call before or after
// Normalize.
func (o *Options) PrintsBackground() bool {
	return o.PrintBackground == nil || *o.PrintBackground
}

// Normalize fills in the defaults spec'd for enqueue: copies=1,
// printBackground=true, pageSize=A4. Spooler.Enqueue applies it to every
// job, so producers (local API, remote client) pass Options through
// unnormalized and the defaults live in one place.
func (o *Options) Normalize() {
	if o.Copies < 1 {
		o.Copies = 1
	}
	if o.PageSize == "" {
		o.PageSize = "A4"
	}
	if o.PrintBackground == nil {
		t := true
		o.PrintBackground = &t
	}
}

// Job is the central spooler entity.
type Job struct {
	ID           string
	ServerJobID  string // set iff the job was injected by the remote client
	CreatedAt    time.Time
	Priority     Priority
	Status       Status
	RetryCount   int
	LastError    string
	Payload      Payload
	Options      Options
	TempPath     string // set while C4 holds a materialized temp PDF for this job
	TempOwnedBy  bool   // true if the agent owns TempPath and must unlink it
	SeqNum       uint64 // monotonic enqueue sequence, breaks FIFO ties within a priority
	Cancelled    bool   // advisory: set when cancel() targets the in-flight job
	attemptStart time.Time
}

// NewID returns a fresh, locally-unique job identifier.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep-enough copy of the job suitable for safely handing to
// callers outside the spooler's lock (listings, event payloads).
func (j *Job) Clone() *Job {
	cp := *j
	if j.Options.Margins != nil {
		m := *j.Options.Margins
		cp.Options.Margins = &m
	}
	if j.Options.Metadata != nil {
		cp.Options.Metadata = make(map[string]string, len(j.Options.Metadata))
		for k, v := range j.Options.Metadata {
			cp.Options.Metadata[k] = v
		}
	}
	return &cp
}
