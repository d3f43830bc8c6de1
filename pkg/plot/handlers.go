package plot

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/raykavin/rsdash/pkg/cookie"
	"github.com/raykavin/rsdash/pkg/core"
)

// CSRFHeader must echo the csrftoken cookie on mutating requests
const CSRFHeader = "X-CSRFToken"

// handleHealth reports unhealthy until a refresh has been applied
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	lastUpdate, lastError := s.lastUpdate, s.lastError
	s.mu.RUnlock()

	status := http.StatusOK
	if lastUpdate.IsZero() {
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{"clients": s.hub.Clients()}
	if !lastUpdate.IsZero() {
		body["last_update"] = lastUpdate
	}
	if lastError != nil {
		body["last_error"] = lastError.Error()
	}

	s.writeJSON(w, status, body)
}

// handleIndex handles the main page request
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	selected := s.selector.Value()
	if controller := s.attached(); controller != nil {
		if year, _ := controller.Current(); year != "" {
			selected = year
		}
	}

	w.Header().Set("Content-Type", "text/html")
	err := s.indexHTML.Execute(w, map[string]any{
		"years":    s.selector.Options(),
		"selected": selected,
		"charts":   ChartIDs,
		"regions":  RegionIDs,
	})
	if err != nil {
		s.log.WithError(err).Error("template execution failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.State())
}

// handleChart renders chart 1 or 2 as a standalone page
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || index < 1 || index > len(s.charts) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := s.charts[index-1].Render(w); err != nil {
		if errors.Is(err, ErrNoData) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.log.WithError(err).Error("chart rendering failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleYear selects a year and refreshes the dashboard. The request must
// carry the csrftoken cookie value in the X-CSRFToken header.
func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	if !validCSRF(r) {
		s.writeError(w, http.StatusForbidden, "CSRF verification failed")
		return
	}

	year, err := requestedYear(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.attached() == nil {
		s.writeError(w, http.StatusServiceUnavailable, "dashboard is not ready")
		return
	}

	if err := s.SelectYear(r.Context(), year); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, s.State())
}

func validCSRF(r *http.Request) bool {
	token, err := cookie.Read(r.Header.Get("Cookie"), cookie.CSRFName)
	if err != nil || token == "" {
		return false
	}
	return r.Header.Get(CSRFHeader) == token
}

func requestedYear(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			Year string `json:"year"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&body); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return body.Year, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form body")
	}
	return r.PostForm.Get("year"), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidYear):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("JSON encoding failed")
	}
}
