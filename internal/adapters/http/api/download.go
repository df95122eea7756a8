package api

import (
	"net/http"
	"strconv"
	"strings"
)

// DownloadHandler redirects beatmap set downloads to the mirror.
type DownloadHandler struct {
	baseURL string
}

// NewDownloadHandler creates a handler redirecting to baseURL + set id.
func NewDownloadHandler(baseURL string) *DownloadHandler {
	return &DownloadHandler{baseURL: baseURL}
}

// HandleDownload handles GET /d/{set_id}. A trailing "n" asks the mirror for
// the archive without video.
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("set_id")
	noVideo := strings.HasSuffix(raw, "n")
	raw = strings.TrimSuffix(raw, "n")

	id, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, "Invalid set id", http.StatusBadRequest)
		return
	}

	target := h.baseURL + strconv.Itoa(id)
	if noVideo {
		target += "?novideo"
	}
	w.Header().Set("Location", target)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusFound)
}
