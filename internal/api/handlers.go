package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/420247jake/the-mind/internal/domain"
	"github.com/420247jake/the-mind/internal/graph"
	"github.com/420247jake/the-mind/internal/loader"
	"github.com/420247jake/the-mind/internal/overlay/spark"
	"github.com/420247jake/the-mind/pkg/errors"
)

// maxBodyBytes caps request bodies. Every body this API accepts is tiny.
const maxBodyBytes = 64 << 10

// SnapshotResponse is the materialized graph as last loaded.
type SnapshotResponse struct {
	Thoughts    []domain.Thought    `json:"thoughts"`
	Connections []domain.Connection `json:"connections"`
	Clusters    []domain.Cluster    `json:"clusters"`
	Mode        graph.Mode          `json:"mode"`
	Windowed    bool                `json:"windowed"`
	Window      *graph.Window       `json:"window,omitempty"`
	TotalCount  int                 `json:"total_count"`
	Version     domain.VersionToken `json:"version"`
	LoadedAt    time.Time           `json:"loaded_at"`
	Stats       graph.BuildStats    `json:"stats"`
}

func newSnapshotResponse(snap *graph.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		Thoughts:    snap.Thoughts(),
		Connections: snap.Connections(),
		Clusters:    snap.Clusters(),
		Mode:        snap.Mode(),
		Windowed:    snap.Windowed(),
		Window:      snap.Window(),
		TotalCount:  snap.TotalCount(),
		Version:     snap.Version(),
		LoadedAt:    snap.LoadedAt(),
		Stats:       snap.Stats(),
	}
}

// ThoughtResponse adds the live brightness to a thought.
type ThoughtResponse struct {
	domain.Thought
	Brightness float64 `json:"brightness"`
	Visible    bool    `json:"visible"`
}

// ViewpointRequest reports the renderer camera position.
type ViewpointRequest struct {
	X *float64 `json:"x" validate:"required,finite"`
	Y *float64 `json:"y" validate:"required,finite"`
	Z *float64 `json:"z" validate:"required,finite"`
}

// TimelineRequest changes the playback state. Absent fields are left alone.
// Seek wins over Progress when both are set.
type TimelineRequest struct {
	Enabled  *bool      `json:"enabled,omitempty"`
	Playing  *bool      `json:"playing,omitempty"`
	Speed    *float64   `json:"speed,omitempty" validate:"omitempty,finite,gt=0"`
	Progress *float64   `json:"progress,omitempty" validate:"omitempty,finite,gte=0,lte=1"`
	Seek     *time.Time `json:"seek,omitempty"`
}

// SparkRequest switches the ambient preset or toggles sparking.
type SparkRequest struct {
	Preset  string `json:"preset,omitempty" validate:"omitempty,preset"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// SparkResponse is the spark state plus the presets a client may pick.
type SparkResponse struct {
	spark.State
	Presets []string `json:"presets"`
}

// ReloadResponse reports the outcome of a manual reload.
type ReloadResponse struct {
	Mode       graph.Mode          `json:"mode"`
	Thoughts   int                 `json:"thoughts"`
	TotalCount int                 `json:"total_count"`
	Version    domain.VersionToken `json:"version"`
}

// HealthResponse is served by /healthz.
type HealthResponse struct {
	Status   string        `json:"status"`
	Reload   loader.Status `json:"reload"`
	Thoughts int           `json:"thoughts"`
	Mode     graph.Mode    `json:"mode"`
	Clients  int           `json:"stream_clients"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return errors.NewValidationError("Invalid request body").WithCause(err)
	}
	return s.validator.Struct(target)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, newSnapshotResponse(s.scene.Graph().Current()))
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, s.renderFrame())
}

func (s *Server) getThought(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.scene.Graph().GetThought(id)
	if !ok {
		s.errorHandler.Handle(w, r, errors.NewNotFoundError("thought"))
		return
	}
	now := s.now()
	errors.WriteJSON(w, http.StatusOK, ThoughtResponse{
		Thought:    t,
		Brightness: s.scene.BrightnessOf(id, now),
		Visible:    s.scene.Engines().Timeline.IsVisible(t.CreatedAt),
	})
}

func (s *Server) getConnections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap := s.scene.Graph().Current()
	if _, ok := snap.Thought(id); !ok {
		s.errorHandler.Handle(w, r, errors.NewNotFoundError("thought"))
		return
	}
	errors.WriteJSON(w, http.StatusOK, snap.ConnectionsFor(id))
}

func (s *Server) listClusters(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, s.scene.Graph().Current().Clusters())
}

func (s *Server) getCluster(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "category")
	c := domain.Category(raw)
	if !c.Valid() {
		s.errorHandler.Handle(w, r, errors.NewValidationError("Unknown category").
			WithDetails(map[string]any{"category": raw}))
		return
	}
	cluster, ok := s.scene.Graph().GetClusterForCategory(c)
	if !ok {
		s.errorHandler.Handle(w, r, errors.NewNotFoundError("cluster"))
		return
	}
	errors.WriteJSON(w, http.StatusOK, cluster)
}

func (s *Server) getViewpoint(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, s.scene.Viewpoint())
}

func (s *Server) putViewpoint(w http.ResponseWriter, r *http.Request) {
	var req ViewpointRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorHandler.Handle(w, r, err)
		return
	}
	p := domain.Position{X: *req.X, Y: *req.Y, Z: *req.Z}
	s.scene.SetViewpoint(p)
	errors.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, s.scene.Engines().Timeline.State())
}

func (s *Server) postTimeline(w http.ResponseWriter, r *http.Request) {
	var req TimelineRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorHandler.Handle(w, r, err)
		return
	}

	tl := s.scene.Engines().Timeline
	if req.Enabled != nil {
		if *req.Enabled {
			tl.Enable()
		} else {
			tl.Disable()
		}
	}
	if req.Speed != nil {
		tl.SetSpeed(*req.Speed)
	}
	switch {
	case req.Seek != nil:
		tl.Seek(*req.Seek)
	case req.Progress != nil:
		tl.SetProgress(*req.Progress)
	}
	if req.Playing != nil {
		if *req.Playing {
			tl.Play()
		} else {
			tl.Pause()
		}
	}
	errors.WriteJSON(w, http.StatusOK, tl.State())
}

func (s *Server) sparkResponse() SparkResponse {
	return SparkResponse{State: s.scene.Engines().Spark.State(), Presets: spark.Names()}
}

func (s *Server) getSpark(w http.ResponseWriter, r *http.Request) {
	errors.WriteJSON(w, http.StatusOK, s.sparkResponse())
}

func (s *Server) putSpark(w http.ResponseWriter, r *http.Request) {
	var req SparkRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorHandler.Handle(w, r, err)
		return
	}

	sp := s.scene.Engines().Spark
	if req.Preset != "" {
		if err := sp.SetPreset(req.Preset); err != nil {
			s.errorHandler.Handle(w, r, err)
			return
		}
	}
	if req.Enabled != nil {
		if *req.Enabled {
			sp.Enable()
		} else {
			sp.Disable()
		}
	}
	errors.WriteJSON(w, http.StatusOK, s.sparkResponse())
}

func (s *Server) getTuning(w http.ResponseWriter, r *http.Request) {
	if s.tuning == nil {
		s.errorHandler.Handle(w, r, errors.NewNotFoundError("tuning"))
		return
	}
	errors.WriteJSON(w, http.StatusOK, s.tuning.Current())
}

func (s *Server) postReload(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.errorHandler.Handle(w, r, errors.NewRateLimitError("Reload requested too often"))
		return
	}
	snap, err := s.pipeline.Reload(r.Context(), loader.ReasonManual)
	if err != nil {
		s.errorHandler.Handle(w, r, errors.Wrap(err, "Reload failed, previous snapshot kept"))
		return
	}
	errors.WriteJSON(w, http.StatusOK, ReloadResponse{
		Mode:       snap.Mode(),
		Thoughts:   len(snap.Thoughts()),
		TotalCount: snap.TotalCount(),
		Version:    snap.Version(),
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.pipeline.Status()
	snap := s.scene.Graph().Current()
	resp := HealthResponse{
		Status:   "ok",
		Reload:   status,
		Thoughts: len(snap.Thoughts()),
		Mode:     snap.Mode(),
		Clients:  s.hub.ClientCount(),
	}
	if status.Degraded || status.VersionDegraded || status.SpatialDegraded {
		resp.Status = "degraded"
	}
	// Degraded still serves the retained snapshot, so it is not an outage.
	errors.WriteJSON(w, http.StatusOK, resp)
}
