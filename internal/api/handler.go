// Package api serves clustering and threat scoring over HTTP.
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"TrafficSentry/internal/cluster"
	"TrafficSentry/internal/codec"
	"TrafficSentry/internal/metrics"
	"TrafficSentry/internal/model"
	"TrafficSentry/internal/query"
	"TrafficSentry/internal/threat"
)

const (
	defaultMethod   = "kmeans"
	defaultClusters = 3
	maxBodyBytes    = 32 << 20
)

// Handler holds the dependencies of the API handlers. A nil querier disables the routes
// that read stored runs.
type Handler struct {
	querier query.Querier
	metrics *metrics.Metrics
	scorer  threat.Scorer
	now     func() time.Time
}

// NewHandler creates a Handler. Both arguments may be nil.
func NewHandler(querier query.Querier, m *metrics.Metrics) *Handler {
	return &Handler{querier: querier, metrics: m, now: time.Now}
}

// Router returns the API routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/health", h.healthHandler).Methods(http.MethodGet)
	v1.HandleFunc("/clustering/cluster", h.clusterHandler).Methods(http.MethodPost)
	v1.HandleFunc("/threats/score", h.scoreHandler).Methods(http.MethodPost)
	v1.HandleFunc("/threats/batch", h.batchHandler).Methods(http.MethodPost)

	v1.HandleFunc("/clustering/source-metrics", h.sourceMetricsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/clustering/cluster-info", h.clusterInfoHandler).Methods(http.MethodGet)
	v1.HandleFunc("/clustering/cluster/{id:[0-9]+}/sources", h.clusterSourcesHandler).Methods(http.MethodGet)
	return r
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, structpb.NewStringValue("ok"))
}

// clusterHandler clusters the posted source records.
func (h *Handler) clusterHandler(w http.ResponseWriter, r *http.Request) {
	method, err := methodFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	list := body.GetListValue()
	if list == nil {
		if s := body.GetStructValue(); s != nil {
			list = s.GetFields()["sources"].GetListValue()
		}
	}
	if list == nil {
		http.Error(w, "request body must be an array of source records", http.StatusBadRequest)
		return
	}
	sources, skipped := codec.SourceRecords(list)
	if len(skipped) > 0 {
		http.Error(w, fmt.Sprintf("elements %v are not objects", skipped), http.StatusBadRequest)
		return
	}

	started := h.now()
	result := cluster.Analyze(sources, method)
	run := model.ClusterRun{
		RunID:      uuid.NewString(),
		Method:     method.Name(),
		Requested:  method.Clusters(),
		StartedAt:  started,
		FinishedAt: h.now(),
		Sources:    result.Sources,
		Clusters:   result.Summaries(),
	}
	if h.metrics != nil {
		h.metrics.RecordRun(run, run.FinishedAt.Sub(started))
	}
	log.Debug().Str("run_id", run.RunID).Int("sources", len(sources)).Str("method", method.String()).Msg("Clustered posted sources")

	resp, err := codec.ClusterRunStruct(run)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode run: %v", err), http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, resp)
}

// scoreHandler scores a single packet record.
func (h *Handler) scoreHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	s := body.GetStructValue()
	if s == nil {
		http.Error(w, "request body must be a packet record object", http.StatusBadRequest)
		return
	}

	a := h.score(codec.PacketThreatRecord(s))
	writeMessage(w, http.StatusOK, codec.AssessmentStruct(a))
}

// batchHandler scores a list of packet records, preserving their order.
func (h *Handler) batchHandler(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	list := body.GetListValue()
	if list == nil {
		http.Error(w, "request body must be an array of packet records", http.StatusBadRequest)
		return
	}
	records, skipped := codec.PacketThreatRecords(list)
	if len(skipped) > 0 {
		http.Error(w, fmt.Sprintf("elements %v are not objects", skipped), http.StatusBadRequest)
		return
	}

	assessments := make([]model.ThreatAssessment, len(records))
	for i, rec := range records {
		assessments[i] = h.score(rec)
	}
	writeMessage(w, http.StatusOK, codec.AssessmentList(assessments))
}

func (h *Handler) score(r model.PacketThreatRecord) model.ThreatAssessment {
	a := h.scorer.Score(r)
	if h.metrics != nil {
		h.metrics.RecordAssessment(a)
	}
	return a
}

func (h *Handler) sourceMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireQuerier(w) {
		return
	}
	sources, err := h.querier.SourceMetrics(r.Context(), r.URL.Query().Get("runId"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeSources(w, sources)
}

func (h *Handler) clusterInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireQuerier(w) {
		return
	}
	info, err := h.querier.ClusterInfo(r.Context(), r.URL.Query().Get("runId"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, codec.ClusterSummaryList(info))
}

func (h *Handler) clusterSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireQuerier(w) {
		return
	}
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid cluster id", http.StatusBadRequest)
		return
	}
	sources, err := h.querier.ClusterSources(r.Context(), r.URL.Query().Get("runId"), id)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if len(sources) == 0 {
		http.Error(w, fmt.Sprintf("cluster %d has no sources", id), http.StatusNotFound)
		return
	}
	writeSources(w, sources)
}

func (h *Handler) requireQuerier(w http.ResponseWriter) bool {
	if h.querier == nil {
		http.Error(w, "no clustering store is configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func methodFromQuery(r *http.Request) (cluster.Method, error) {
	q := r.URL.Query()
	name := q.Get("method")
	if name == "" {
		name = defaultMethod
	}
	k := defaultClusters
	if raw := q.Get("clusters"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return cluster.Method{}, fmt.Errorf("invalid clusters parameter %q", raw)
		}
		k = n
	}
	return cluster.ParseMethod(name, k), nil
}

// readJSON decodes the request body, writing a 400 response when it cannot.
func readJSON(w http.ResponseWriter, r *http.Request) (*structpb.Value, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return nil, false
	}
	v, err := codec.DecodeJSON(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return nil, false
	}
	return v, true
}

func writeSources(w http.ResponseWriter, sources []model.SourceRecord) {
	list, err := codec.SourceRecordList(sources)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode sources: %v", err), http.StatusInternalServerError)
		return
	}
	writeMessage(w, http.StatusOK, list)
}

func writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, query.ErrNoRuns) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msg("Query failed")
	http.Error(w, fmt.Sprintf("failed to query store: %v", err), http.StatusInternalServerError)
}

func writeMessage(w http.ResponseWriter, status int, m proto.Message) {
	data, err := codec.EncodeJSON(m)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
