package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"cleverprint/agent/history"
	"cleverprint/agent/job"
	"cleverprint/agent/spooler"
)

// printRequest is the wire shape of POST /api/print. The legacy html field
// and the pdfBase64/url aliases are accepted alongside the current
// pdf/pdfPath/pdfUrl names. handlePrint folds pdf/pdfBase64 and pdfUrl/url
// into one field each (current name first); Payload.Validate then rejects a
// request with no payload variant or with more than one.
type printRequest struct {
	PDF             string            `json:"pdf,omitempty"`
	PDFBase64       string            `json:"pdfBase64,omitempty"`
	PDFPath         string            `json:"pdfPath,omitempty"`
	PDFURL          string            `json:"pdfUrl,omitempty"`
	HTML            string            `json:"html,omitempty"`
	URL             string            `json:"url,omitempty"`
	PrinterName     string            `json:"printerName,omitempty"`
	Priority        string            `json:"priority,omitempty"`
	PrintBackground *bool             `json:"printBackground,omitempty"`
	PageSize        string            `json:"pageSize,omitempty"`
	Margins         *job.Margins      `json:"margins,omitempty"`
	Copies          int               `json:"copies,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req printRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	pdfBytes := req.PDF
	if pdfBytes == "" {
		pdfBytes = req.PDFBase64
	}
	pdfURL := req.PDFURL
	if pdfURL == "" {
		pdfURL = req.URL
	}

	payload := job.Payload{
		PDFBytes: pdfBytes,
		PDFPath:  req.PDFPath,
		PDFURL:   pdfURL,
		HTML:     req.HTML,
	}
	if err := payload.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := job.Options{
		PrinterName:     req.PrinterName,
		Copies:          req.Copies,
		PageSize:        req.PageSize,
		Margins:         req.Margins,
		PrintBackground: req.PrintBackground,
		Metadata:        req.Metadata,
	}

	j, err := s.spooler.Enqueue(payload, opts, job.Priority(req.Priority), "")
	if err != nil {
		if err == spooler.ErrQueueFull {
			writeError(w, http.StatusInternalServerError, "queue is full")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"jobId":     j.ID,
		"status":    j.Status,
		"timestamp": j.CreatedAt,
	})
}

type jobView struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Timestamp  interface{} `json:"timestamp"`
	Priority   string    `json:"priority"`
	RetryCount int       `json:"retryCount"`
	Error      string    `json:"error,omitempty"`
}

func toJobView(j *job.Job) jobView {
	return jobView{
		ID:         j.ID,
		Status:     string(j.Status),
		Timestamp:  j.CreatedAt,
		Priority:   string(j.Priority),
		RetryCount: j.RetryCount,
		Error:      j.LastError,
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	active := s.spooler.ListActive()
	views := make([]jobView, 0, len(active))
	for _, j := range active {
		views = append(views, toJobView(j))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": views})
}

// handleJobByID serves both GET /api/jobs/:jobId and POST
// /api/jobs/:jobId/cancel, distinguished by a trailing path segment.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	rest = strings.Trim(rest, "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "job id required")
		return
	}

	if strings.HasSuffix(rest, "/cancel") {
		id := strings.TrimSuffix(rest, "/cancel")
		s.handleCancelJob(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	j, ok := s.spooler.Get(rest)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toJobView(j))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.spooler.Cancel(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "job cancelled"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.spooler.Status()
	resp := map[string]interface{}{
		"isProcessing":   snap.IsProcessing,
		"queueLength":    snap.QueueLength,
		"maxQueueSize":   snap.MaxQueueSize,
		"defaultPrinter": snap.DefaultPrinter,
	}
	if snap.CurrentJob != nil {
		resp["currentJob"] = toJobView(snap.CurrentJob)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	printers := s.enumerator.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"printers": printers})
}

// handleJobHistory is supplemental (C8): it has no entry in the distilled
// spec's endpoint table but surfaces the audit log the history store keeps.
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.historyLog == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": []history.Record{}})
		return
	}

	limit := 200
	offset := 0
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	records, err := s.historyLog.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read job history: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": records})
}
