// Package remote implements the command-center client (C7): a polling
// producer that injects server-originated jobs into the spooler, reports
// terminal status back, and maintains a liveness heartbeat. It is
// disabled entirely whenever serverBaseUrl is unset.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"cleverprint/agent/job"
	"cleverprint/agent/spooler"
)

// Logger is the narrow logging interface remote depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
	WarnRateLimited(key string, interval time.Duration, msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{})                              {}
func (nullLogger) Warn(string, ...interface{})                               {}
func (nullLogger) Info(string, ...interface{})                               {}
func (nullLogger) Debug(string, ...interface{})                              {}
func (nullLogger) WarnRateLimited(string, time.Duration, string, ...interface{}) {}

// Spooler is the subset of *spooler.Spooler the remote client drives.
type Spooler interface {
	Enqueue(payload job.Payload, opts job.Options, priority job.Priority, serverJobID string) (*job.Job, error)
	QueueFull() bool
	Subscribe(buffer int) (<-chan spooler.Event, func())
}

const (
	pollInterval      = 5 * time.Second
	heartbeatInterval = 45 * time.Second
	requestTimeout    = 10 * time.Second
)

// Config is the subset of the Config Store the remote client consults on
// every tick, never cached across polls.
type Config interface {
	ServerBaseURL() string
	APIKey() string
}

// Client polls a command-center server for pending jobs and reports their
// outcome. Hostname and AgentVersion are fixed at construction.
type Client struct {
	cfg      Config
	spooler  Spooler
	logger   Logger
	hostname string
	version  string

	httpClient *http.Client

	mu         sync.Mutex
	inFlight   map[string]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a remote Client. agentVersion is normalized with
// semver before being sent in heartbeats; an unparsable version is sent
// verbatim.
func New(cfg Config, sp Spooler, logger Logger, agentVersion string) *Client {
	if logger == nil {
		logger = nullLogger{}
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return &Client{
		cfg:      cfg,
		spooler:  sp,
		logger:   logger,
		hostname: hostname,
		version:  normalizeVersion(agentVersion),
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		inFlight: make(map[string]struct{}),
	}
}

func normalizeVersion(raw string) string {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return raw
	}
	return v.String()
}

// Start launches the poll loop, the heartbeat loop, and the terminal-event
// subscriber; when serverBaseUrl is unset none of them is started. ctx
// governs their lifetime.
func (c *Client) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if c.cfg.ServerBaseURL() == "" {
		return
	}

	c.wg.Add(3)
	go c.pollLoop(runCtx)
	go c.heartbeatLoop(runCtx)
	go c.statusReportLoop(runCtx)
}

// Shutdown sends a final best-effort offline heartbeat and stops the
// client's background loops.
func (c *Client) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.cfg.ServerBaseURL() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.sendHeartbeat(ctx, "offline", ""); err != nil {
		c.logger.Warn("final offline heartbeat failed", "error", err)
	}
}

func (c *Client) pollLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

type pendingJob struct {
	ID              string            `json:"id"`
	PDFBytes        string            `json:"pdfBytes,omitempty"`
	PDFPath         string            `json:"pdfPath,omitempty"`
	PDFURL          string            `json:"pdfUrl,omitempty"`
	PrinterName     string            `json:"printerName,omitempty"`
	Priority        string            `json:"priority,omitempty"`
	Copies          int               `json:"copies,omitempty"`
	PageSize        string            `json:"pageSize,omitempty"`
	PrintBackground *bool             `json:"printBackground,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type pendingJobsResponse struct {
	Jobs []pendingJob `json:"jobs"`
}

func (c *Client) pollOnce(ctx context.Context) {
	var resp pendingJobsResponse
	status, err := c.doRequest(ctx, "GET", "/api/command-center/printing/pending-jobs?limit=10", nil, &resp)
	if err != nil {
		c.logger.WarnRateLimited("remote-poll", time.Minute, "remote poll failed", "error", err)
		return
	}
	if status != http.StatusOK {
		c.logger.Debug("remote poll returned non-200", "status", status)
		return
	}

	for _, pj := range resp.Jobs {
		if c.isInFlight(pj.ID) {
			continue
		}
		if c.spooler.QueueFull() {
			c.logger.Debug("queue full, deferring remaining poll batch to next tick")
			return
		}

		payload := job.Payload{PDFBytes: pj.PDFBytes, PDFPath: pj.PDFPath, PDFURL: pj.PDFURL}
		opts := job.Options{
			PrinterName:     pj.PrinterName,
			Copies:          pj.Copies,
			PageSize:        pj.PageSize,
			PrintBackground: pj.PrintBackground,
			Metadata:        pj.Metadata,
		}

		j, err := c.spooler.Enqueue(payload, opts, job.Priority(pj.Priority), pj.ID)
		if err != nil {
			if errors.Is(err, spooler.ErrQueueFull) {
				return
			}
			c.reportStatus(ctx, pj.ID, "failed", err.Error())
			continue
		}
		c.markInFlight(j.ServerJobID)
	}
}

func (c *Client) isInFlight(serverJobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[serverJobID]
	return ok
}

func (c *Client) markInFlight(serverJobID string) {
	if serverJobID == "" {
		return
	}
	c.mu.Lock()
	c.inFlight[serverJobID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) clearInFlight(serverJobID string) {
	if serverJobID == "" {
		return
	}
	c.mu.Lock()
	delete(c.inFlight, serverJobID)
	c.mu.Unlock()
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	if err := c.sendHeartbeat(ctx, "online", ""); err != nil {
		c.logger.WarnRateLimited("remote-heartbeat", time.Minute, "startup heartbeat failed", "error", err)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(ctx, "online", ""); err != nil {
				c.logger.WarnRateLimited("remote-heartbeat", time.Minute, "heartbeat failed", "error", err)
			}
		}
	}
}

type heartbeatRequest struct {
	Hostname     string `json:"hostname"`
	AgentVersion string `json:"agentVersion"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (c *Client) sendHeartbeat(ctx context.Context, status, errMsg string) error {
	req := heartbeatRequest{Hostname: c.hostname, AgentVersion: c.version, Status: status, ErrorMessage: errMsg}
	_, err := c.doRequest(ctx, "POST", "/api/command-center/printing/heartbeat", req, nil)
	return err
}

// statusReportLoop subscribes to spooler terminal events and reports them
// for any job carrying a ServerJobID.
func (c *Client) statusReportLoop(ctx context.Context) {
	defer c.wg.Done()

	events, unsubscribe := c.spooler.Subscribe(32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ctx, ev)
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, ev spooler.Event) {
	if ev.Job == nil || ev.Job.ServerJobID == "" {
		return
	}
	switch ev.Type {
	case spooler.EventJobCompleted:
		c.reportStatus(ctx, ev.Job.ServerJobID, "printed", "")
		c.clearInFlight(ev.Job.ServerJobID)
	case spooler.EventJobFailed:
		msg := ev.Job.LastError
		if msg == "" && ev.Err != nil {
			msg = ev.Err.Error()
		}
		c.reportStatus(ctx, ev.Job.ServerJobID, "failed", msg)
		c.clearInFlight(ev.Job.ServerJobID)
	case spooler.EventJobUpdated:
		// Cancellation finishes as an EventJobUpdated (it shares no
		// dedicated terminal event type); any other terminal status
		// reaching here is reported too, mapped to "failed" per spec.
		if ev.Job.Status.Terminal() {
			c.reportStatus(ctx, ev.Job.ServerJobID, "failed", ev.Job.LastError)
			c.clearInFlight(ev.Job.ServerJobID)
		}
	}
}

type statusRequest struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// reportStatus maps a local terminal status to the server's vocabulary
// ("completed" -> "printed", anything else -> "failed") and POSTs it. A
// non-success response is logged; there is no automatic retry of the
// status update itself, per the at-least-once redelivery contract.
func (c *Client) reportStatus(ctx context.Context, serverJobID, localOrWireStatus, errMsg string) {
	wireStatus := localOrWireStatus
	if wireStatus == string(job.StatusCompleted) {
		wireStatus = "printed"
	}
	if wireStatus != "printed" && wireStatus != "failed" {
		wireStatus = "failed"
	}
	req := statusRequest{Status: wireStatus, ErrorMessage: errMsg}
	path := fmt.Sprintf("/api/command-center/printing/jobs/%s/status", serverJobID)
	status, err := c.doRequest(ctx, "POST", path, req, nil)
	if err != nil {
		c.logger.Warn("status report request failed", "serverJobId", serverJobID, "error", err)
		return
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		c.logger.Warn("status report rejected by server", "serverJobId", serverJobID, "status", status)
	}
}

// TestConnection probes the server's health endpoint; success iff the
// response status is exactly 200. Network-level failures are translated
// into human-readable messages.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	status, err := c.doRequest(ctx, "GET", "/api/print-jobs/health", nil, nil)
	if err != nil {
		return false, humanizeConnError(err)
	}
	return status == http.StatusOK, ""
}

func humanizeConnError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "server refused the connection"
	case strings.Contains(msg, "no such host"):
		return "server host could not be resolved"
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return "connection to server timed out"
	default:
		return msg
	}
}

// doRequest performs one HTTP round trip against the configured server,
// applying the spec's header and authentication rules. respBody may be
// nil when the caller only needs the status code.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody interface{}) (int, error) {
	base := c.cfg.ServerBaseURL()
	if base == "" {
		return 0, fmt.Errorf("remote: serverBaseUrl is unset")
	}

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, base+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "CleverPrintingAgent/"+c.version)
	applyAuthHeaders(httpReq, c.cfg.APIKey())

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpResp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	if respBody != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respBody); err != nil {
			return httpResp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return httpResp.StatusCode, nil
}

// applyAuthHeaders implements the dual-scheme rule: a key already prefixed
// (case-insensitively) with "bearer " is sent verbatim as Authorization;
// otherwise the key is sent both as X-API-Key and wrapped as a bearer
// token.
func applyAuthHeaders(req *http.Request, apiKey string) {
	if apiKey == "" {
		return
	}
	if len(apiKey) >= 7 && strings.EqualFold(apiKey[:7], "bearer ") {
		req.Header.Set("Authorization", apiKey)
		return
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Authorization", "Bearer "+apiKey)
}
