package serve

import (
	"fmt"
	"net/http"

	"camtrap/catalog"
	"camtrap/video"
)

type DeleteServer struct {
	Store   *video.EventStore
	Catalog *catalog.Catalog

	// Updated is invoked after a successful delete, e.g. to push a
	// websocket refresh.
	Updated func()
}

func (s *DeleteServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.Form.Get("id")
	if !video.IsEventDir(id) {
		http.Error(w, fmt.Sprintf("Invalid event id %q", id), http.StatusBadRequest)
		return
	}

	if err := s.Store.Delete(s.Store.Path(id)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.Catalog.Remove(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.Updated != nil {
		s.Updated()
	}
}
