package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/chrissnell/fragsize/internal/calibration"
	"github.com/chrissnell/fragsize/internal/database"
	"github.com/chrissnell/fragsize/internal/extract"
	"github.com/chrissnell/fragsize/internal/formula"
	"github.com/chrissnell/fragsize/internal/ladder"
	"github.com/chrissnell/fragsize/internal/peaks"
	"github.com/chrissnell/fragsize/internal/session"
	"github.com/chrissnell/fragsize/internal/trace"
	"github.com/chrissnell/fragsize/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

func (h *Handlers) respond(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}

func (h *Handlers) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.controller.logger.Errorf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	h.respond(w, req, status, responseformat.ErrorBody{Error: err.Error()})
}

func (h *Handlers) decode(req *http.Request, v any) error {
	if err := h.formatter.DecodeRequest(req, v); err != nil {
		return badRequest{err}
	}
	return nil
}

func (h *Handlers) lookup(req *http.Request) (*session.Session, error) {
	return h.controller.sessions.Get(mux.Vars(req)["id"])
}

// GetLadders lists the known ladders
func (h *Handlers) GetLadders(w http.ResponseWriter, req *http.Request) {
	h.respond(w, req, http.StatusOK, h.controller.ladders.All())
}

type detectRequest struct {
	Trace           []float64    `json:"trace"`
	Params          peaks.Params `json:"params"`
	CorrectBaseline bool         `json:"correct_baseline,omitempty"`
	BaselineChunks  int          `json:"baseline_chunks,omitempty"`
}

type detectResponse struct {
	Peaks []peaks.Peak `json:"peaks"`
}

// Detect finds the peaks of a single trace
func (h *Handlers) Detect(w http.ResponseWriter, req *http.Request) {
	var body detectRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}

	tr := body.Trace
	if body.CorrectBaseline {
		chunks := body.BaselineChunks
		if chunks <= 0 {
			chunks = h.controller.cfg.Detection.BaselineChunks
		}
		tr = peaks.Correct(tr, chunks)
	}

	found, err := peaks.Detect(tr, body.Params)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if found == nil {
		found = []peaks.Peak{}
	}
	h.respond(w, req, http.StatusOK, detectResponse{Peaks: found})
}

type matchRequest struct {
	Template  calibration.Template `json:"template"`
	Detected  []int                `json:"detected"`
	Tolerance float64              `json:"tolerance,omitempty"`
}

type matchResponse struct {
	Assignment []calibration.Point     `json:"assignment"`
	Report     calibration.MatchReport `json:"report"`
}

// Match applies a template to a list of detected marker peaks
func (h *Handlers) Match(w http.ResponseWriter, req *http.Request) {
	var body matchRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}
	if body.Tolerance <= 0 {
		body.Tolerance = h.controller.cfg.Detection.TemplateTolerance
	}

	a, report := calibration.MatchWithReport(body.Template, body.Detected, body.Tolerance)
	h.respond(w, req, http.StatusOK, matchResponse{Assignment: a.Points(), Report: report})
}

type calibrateRequest struct {
	Points []calibration.Point `json:"points"`
	Scans  []float64           `json:"scans,omitempty"`
}

type calibrateResponse struct {
	Kind   calibration.Kind    `json:"kind"`
	Points []calibration.Point `json:"points"`
	Sizes  []float64           `json:"sizes,omitempty"`
}

// Calibrate fits a calibration through the given points and optionally evaluates it
func (h *Handlers) Calibrate(w http.ResponseWriter, req *http.Request) {
	var body calibrateRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}

	cal, err := calibration.BuildPoints(body.Points)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	resp := calibrateResponse{Kind: cal.Kind, Points: cal.Points}
	for _, scan := range body.Scans {
		resp.Sizes = append(resp.Sizes, cal.Size(scan))
	}
	h.respond(w, req, http.StatusOK, resp)
}

type formulaRequest struct {
	Formula   string             `json:"formula,omitempty"`
	Variables []formula.Variable `json:"variables"`
}

type formulaResponse struct {
	Formula   string             `json:"formula"`
	Variables []formula.Variable `json:"variables"`
	Result    float64            `json:"result"`
	Formatted string             `json:"formatted"`
}

// EvaluateFormula evaluates a formula over user-named peak heights
func (h *Handlers) EvaluateFormula(w http.ResponseWriter, req *http.Request) {
	var body formulaRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}
	if body.Formula == "" {
		body.Formula = formula.DefaultFormula
	}

	vars := formula.NewVariables()
	for _, v := range body.Variables {
		if v.Name == "" {
			vars.Add(v)
			continue
		}
		if _, err := vars.Set(v); err != nil {
			h.fail(w, req, badRequest{err})
			return
		}
	}

	result, err := vars.Evaluate(body.Formula)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, formulaResponse{
		Formula:   body.Formula,
		Variables: vars.List(),
		Result:    result,
		Formatted: formula.FormatResult(result),
	})
}

type createSessionRequest struct {
	Directory     string                          `json:"directory,omitempty"`
	Traces        map[string]map[string][]float64 `json:"traces,omitempty"`
	Samples       []string                        `json:"samples,omitempty"`
	MarkerChannel string                          `json:"marker_channel,omitempty"`
	Ladder        string                          `json:"ladder,omitempty"`
	Template      calibration.Template            `json:"template,omitempty"`
	Detection     *peaks.Params                   `json:"detection,omitempty"`
}

type sessionView struct {
	ID            string                      `json:"id"`
	Created       time.Time                   `json:"created"`
	Samples       []string                    `json:"samples"`
	MarkerChannel string                      `json:"marker_channel"`
	Ladder        ladder.Ladder               `json:"ladder"`
	Summary       session.Summary             `json:"summary"`
	Next          string                      `json:"next,omitempty"`
	Active        *session.SampleState        `json:"active,omitempty"`
	Template      []calibration.TemplateEntry `json:"template,omitempty"`
	FailedFiles   map[string]string           `json:"failed_files,omitempty"`
}

func newSessionView(s *session.Session) sessionView {
	v := sessionView{
		ID:            s.ID,
		Created:       s.Created,
		Samples:       s.Samples(),
		MarkerChannel: s.MarkerChannel(),
		Ladder:        s.Ladder(),
		Summary:       s.Summary(),
	}
	v.Next, _ = s.Next()
	if st, err := s.State(); err == nil {
		v.Active = st
	}
	if t := s.Template(); t != nil {
		v.Template = t.Entries()
	}
	return v
}

// CreateSession loads traces from a directory of CSV files, or from the request body, and
// starts a session over them
func (h *Handlers) CreateSession(w http.ResponseWriter, req *http.Request) {
	var body createSessionRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}

	var provider *trace.MemoryProvider
	failed := map[string]string{}
	switch {
	case body.Directory != "":
		p, failures, err := trace.LoadDir(body.Directory)
		if err != nil {
			h.fail(w, req, badRequest{err})
			return
		}
		for path, ferr := range failures {
			failed[path] = ferr.Error()
		}
		provider = p
	case len(body.Traces) > 0:
		provider = trace.NewMemoryProvider()
		samples := make([]string, 0, len(body.Traces))
		for sample := range body.Traces {
			samples = append(samples, sample)
		}
		sort.Strings(samples)
		for _, sample := range samples {
			for channel, data := range body.Traces[sample] {
				provider.Add(sample, channel, data)
			}
		}
	default:
		h.fail(w, req, errNoTraces)
		return
	}

	cfg := h.controller.cfg
	ladderName := body.Ladder
	if ladderName == "" {
		ladderName = cfg.Ladder
	}
	if ladderName == "" {
		ladderName = ladder.Default
	}
	l, err := h.controller.ladders.Lookup(ladderName)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	markerChannel := body.MarkerChannel
	if markerChannel == "" {
		markerChannel = cfg.MarkerChannel
	}

	opts := session.OptionsFromConfig(cfg.Detection)
	if body.Detection != nil {
		opts.Detection = *body.Detection
	}

	s, err := session.New(provider, session.Config{
		Samples:       body.Samples,
		MarkerChannel: markerChannel,
		Ladder:        l,
		Options:       opts,
		Template:      body.Template,
	}, h.controller.logger)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.controller.sessions.Add(s)

	view := newSessionView(s)
	if len(failed) > 0 {
		view.FailedFiles = failed
	}
	h.respond(w, req, http.StatusCreated, view)
}

// ListSessions lists the sessions held in memory
func (h *Handlers) ListSessions(w http.ResponseWriter, req *http.Request) {
	views := []sessionView{}
	for _, s := range h.controller.sessions.List() {
		views = append(views, newSessionView(s))
	}
	h.respond(w, req, http.StatusOK, views)
}

// ListStoredSessions lists the snapshots in the session store
func (h *Handlers) ListStoredSessions(w http.ResponseWriter, req *http.Request) {
	stored, err := h.controller.sessions.Stored()
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, stored)
}

// GetSession returns a session's progress
func (h *Handlers) GetSession(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, newSessionView(s))
}

// DeleteSession discards a session
func (h *Handlers) DeleteSession(w http.ResponseWriter, req *http.Request) {
	if err := h.controller.sessions.Delete(mux.Vars(req)["id"]); err != nil {
		h.fail(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetState returns the sample being calibrated
func (h *Handlers) GetState(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	st, err := s.State()
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, st)
}

// Redetect detects the active sample's marker peaks again with new parameters
func (h *Handlers) Redetect(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	var p peaks.Params
	if err := h.decode(req, &p); err != nil {
		h.fail(w, req, err)
		return
	}
	st, err := s.Redetect(p)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, st)
}

type assignRequest struct {
	Scan   *int     `json:"scan,omitempty"`
	Near   *float64 `json:"near,omitempty"`
	SizeBP float64  `json:"size_bp"`
}

type commitResponse struct {
	Calibration *calibration.Calibration `json:"calibration,omitempty"`
	Summary     session.Summary          `json:"summary"`
	Next        string                   `json:"next,omitempty"`
}

// SampleAction runs one step of the calibration workflow on a sample
func (h *Handlers) SampleAction(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	vars := mux.Vars(req)
	sample, action := vars["sample"], vars["action"]

	if action == "begin" {
		st, err := s.Begin(sample)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		h.respond(w, req, http.StatusOK, st)
		return
	}

	st, err := s.State()
	if err != nil {
		h.fail(w, req, err)
		return
	}
	if st.Sample != sample {
		h.fail(w, req, fmt.Errorf("%w: %s is being calibrated, not %s", session.ErrNoActiveSample, st.Sample, sample))
		return
	}

	switch action {
	case "assign":
		var body assignRequest
		if err := h.decode(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		switch {
		case body.Scan != nil:
			err = s.Assign(*body.Scan, body.SizeBP)
		case body.Near != nil:
			_, err = s.AssignNear(*body.Near, body.SizeBP)
		default:
			err = badRequest{fmt.Errorf("scan or near is required")}
		}

	case "unassign":
		var body struct {
			Scan int `json:"scan"`
		}
		if err := h.decode(req, &body); err != nil {
			h.fail(w, req, err)
			return
		}
		err = s.Unassign(body.Scan)

	case "clear":
		err = s.Clear()

	case "commit":
		cal, err := s.Commit()
		if err != nil {
			h.fail(w, req, err)
			return
		}
		h.controller.sessions.Persist(s)
		resp := commitResponse{Calibration: cal, Summary: s.Summary()}
		resp.Next, _ = s.Next()
		h.respond(w, req, http.StatusOK, resp)
		return

	case "skip":
		if err := s.Skip(); err != nil {
			h.fail(w, req, err)
			return
		}
		h.controller.sessions.Persist(s)
		resp := commitResponse{Summary: s.Summary()}
		resp.Next, _ = s.Next()
		h.respond(w, req, http.StatusOK, resp)
		return
	}

	if err != nil {
		h.fail(w, req, err)
		return
	}
	st, err = s.State()
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, st)
}

// GetTemplate returns the session's template in its exchange form
func (h *Handlers) GetTemplate(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	t := s.Template()
	if t == nil {
		t = calibration.Template{}
	}
	h.respond(w, req, http.StatusOK, t)
}

// PutTemplate replaces the session's template
func (h *Handlers) PutTemplate(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	var t calibration.Template
	if err := h.decode(req, &t); err != nil {
		h.fail(w, req, err)
		return
	}
	s.SetTemplate(t)
	h.controller.sessions.Persist(s)
	h.respond(w, req, http.StatusOK, t)
}

// DeleteTemplate drops the template so the next committed sample creates a new one
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	s.ResetTemplate()
	h.controller.sessions.Persist(s)
	w.WriteHeader(http.StatusNoContent)
}

// GetSeries returns a calibrated, baseline-corrected trace for plotting
func (h *Handlers) GetSeries(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	vars := mux.Vars(req)
	series, err := h.extractor(s).Series(vars["sample"], vars["channel"])
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, series)
}

type extractRequest struct {
	SessionID string   `json:"session_id"`
	Samples   []string `json:"samples,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	MinHeight *float64 `json:"min_height,omitempty"`
	Archive   bool     `json:"archive,omitempty"`
}

type extractResponse struct {
	*extract.Result
	RunID string `json:"run_id,omitempty"`
}

// Extract sizes the peaks of a session's sample channels
func (h *Handlers) Extract(w http.ResponseWriter, req *http.Request) {
	var body extractRequest
	if err := h.decode(req, &body); err != nil {
		h.fail(w, req, err)
		return
	}
	s, err := h.controller.sessions.Get(body.SessionID)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	r := h.extractRequest(s, body.Samples, body.Channels, body.MinHeight)
	res, err := h.extractor(s).Extract(req.Context(), r)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	resp := extractResponse{Result: res}
	if body.Archive {
		id, err := h.archive(req.Context(), s, r, res)
		if err != nil {
			h.fail(w, req, err)
			return
		}
		resp.RunID = id
	}
	h.respond(w, req, http.StatusOK, resp)
}

// Export writes a session's extraction as CSV. layout selects the summary table (default), the
// per-sample pivot table or the analysis parameters.
func (h *Handlers) Export(w http.ResponseWriter, req *http.Request) {
	s, err := h.lookup(req)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	var minHeight *float64
	if v := req.URL.Query().Get("min_height"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.fail(w, req, badRequest{fmt.Errorf("invalid min_height %q", v)})
			return
		}
		minHeight = &f
	}
	r := h.extractRequest(s, nil, nil, minHeight)

	layout := req.URL.Query().Get("layout")
	if layout == "parameters" {
		w.Header().Set("Content-Type", "text/csv")
		err := extract.WriteParameters(w, extract.Parameters{
			Samples:       r.Samples,
			LadderType:    s.Ladder().Name,
			MarkerChannel: s.MarkerChannel(),
			MinHeight:     r.MinHeight,
			AnalysedAt:    time.Now(),
		})
		if err != nil {
			h.controller.logger.Errorf("error writing parameters: %v", err)
		}
		return
	}

	res, err := h.extractor(s).Extract(req.Context(), r)
	if err != nil {
		h.fail(w, req, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	switch layout {
	case "pivot":
		err = extract.WritePivotCSV(w, res.Records)
	case "", "summary":
		err = extract.WriteCSV(w, res.Records)
	default:
		err = badRequest{fmt.Errorf("unknown layout %q", layout)}
	}
	if err != nil {
		h.fail(w, req, err)
	}
}

// ListRuns lists archived extraction runs
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	if h.controller.archive == nil {
		h.fail(w, req, errArchiveDisabled)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	runs, err := h.controller.archive.ListRuns(req.Context(), limit)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, runs)
}

// GetRun returns one archived run with its peaks
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	if h.controller.archive == nil {
		h.fail(w, req, errArchiveDisabled)
		return
	}
	run, err := h.controller.archive.GetRun(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.fail(w, req, err)
		return
	}
	h.respond(w, req, http.StatusOK, run)
}

func (h *Handlers) extractor(s *session.Session) *extract.Extractor {
	e := s.Extractor().WithConfig(h.controller.cfg.Extraction)
	e.BaselineChunks = h.controller.cfg.Detection.BaselineChunks
	return e
}

// extractRequest fills unset fields from the session and the configuration
func (h *Handlers) extractRequest(s *session.Session, samples, channels []string, minHeight *float64) extract.Request {
	cfg := h.controller.cfg

	r := extract.Request{Samples: samples, Channels: channels, MinHeight: cfg.Extraction.MinHeight}
	if len(r.Samples) == 0 {
		r.Samples = s.Samples()
	}
	if len(r.Channels) == 0 {
		r.Channels = cfg.SampleChannels
	}
	if len(r.Channels) == 0 {
		r.Channels = trace.SelectSamples(trace.AllChannels(s.Traces()))
	}
	if minHeight != nil {
		r.MinHeight = *minHeight
	}
	return r
}

func (h *Handlers) archive(ctx context.Context, s *session.Session, r extract.Request, res *extract.Result) (string, error) {
	if h.controller.archive == nil {
		return "", errArchiveDisabled
	}
	run, err := database.NewRun(database.RunInfo{
		SessionID:     s.ID,
		Ladder:        s.Ladder().Name,
		MarkerChannel: s.MarkerChannel(),
		MinHeight:     r.MinHeight,
	}, res, s.Calibrations())
	if err != nil {
		return "", err
	}
	if err := h.controller.archive.ArchiveRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}
