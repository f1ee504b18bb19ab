// Package serve exposes the trap's state and captured events over HTTP.
package serve

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"camtrap/catalog"
	"camtrap/output"
	"camtrap/video"
)

const defaultStatusLimit = 50

type EventEntry struct {
	ID        string
	Timestamp int64

	Frames     int
	Inferences int

	Detection  string
	Confidence float32

	HaveVideo bool
	HaveThumb bool
}

type StatusResponse struct {
	State       string
	MotionScore float64

	Items      []*EventEntry
	ItemsCount int
}

// Pipeline is the live capture state consulted by the status endpoint.
type Pipeline interface {
	State() video.RecorderState
	LastScore() float64
}

func haveFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

func toEventEntry(e *catalog.Event) *EventEntry {
	return &EventEntry{
		ID:         e.Name,
		Timestamp:  e.StartedAt.Unix(),
		Frames:     e.Frames,
		Inferences: e.Inferences,
		Detection:  e.Detection,
		Confidence: e.Confidence,
		HaveVideo:  haveFile(e.Dir, output.VideoOutFile),
		HaveThumb:  haveFile(e.Dir, output.ThumbFile),
	}
}

type StatusServer struct {
	Catalog  *catalog.Catalog
	Pipeline Pipeline
}

func (s *StatusServer) BuildResponse(limit int) (*StatusResponse, error) {
	events, err := s.Catalog.Recent(limit)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		State:       s.Pipeline.State().String(),
		MotionScore: s.Pipeline.LastScore(),
	}
	for i := range events {
		resp.Items = append(resp.Items, toEventEntry(&events[i]))
	}
	resp.ItemsCount = len(resp.Items)
	return resp, nil
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := defaultStatusLimit
	if v := r.Form.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp, err := s.BuildResponse(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	js, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}
