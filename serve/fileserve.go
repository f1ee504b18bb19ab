package serve

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"camtrap/output"
	"camtrap/video"
)

// FileServer serves one file kind out of event directories, addressed by
// event id. Ids are validated against the event naming pattern so request
// parameters can never escape the output directory.
type FileServer struct {
	BasePath    string
	FileName    string
	ContentType string
}

func NewVideoServer(basePath string) *FileServer {
	return &FileServer{
		BasePath:    basePath,
		FileName:    output.VideoOutFile,
		ContentType: "video/mp4",
	}
}

func NewThumbServer(basePath string) *FileServer {
	return &FileServer{
		BasePath:    basePath,
		FileName:    output.ThumbFile,
		ContentType: "image/jpeg",
	}
}

func NewRawVideoServer(basePath string) *FileServer {
	return &FileServer{
		BasePath:    basePath,
		FileName:    video.VideoFile,
		ContentType: "video/h264",
	}
}

func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.Form.Get("id")
	if !video.IsEventDir(id) {
		http.Error(w, fmt.Sprintf("Invalid event id %q", id), http.StatusBadRequest)
		return
	}

	f, err := os.Open(filepath.Join(s.BasePath, id, s.FileName))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Add("Content-Type", s.ContentType)
	io.Copy(w, f)
}
