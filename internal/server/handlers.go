package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"resume-matcher/internal/db"
	"resume-matcher/internal/helper"
	"resume-matcher/internal/matcher"
	"resume-matcher/internal/models"
)

const (
	msgMissingInput = "Please upload resume and fill job description..."
	msgEmptyCorpus  = "No readable text was found in the job description or the resumes."
	msgTopResumes   = "Top resumes are :"
)

type pageData struct {
	JobDescription string
	Message        string
	Results        []models.ScoredCandidate
	Warnings       []models.ExtractionWarning
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageData{})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.render(w, http.StatusBadRequest, pageData{Message: "Could not read the upload: " + err.Error()})
		return
	}

	jobDescription := r.FormValue("job_description")
	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["resumes"] {
			// Browsers send one empty part when no file was chosen.
			if fh.Filename != "" {
				files = append(files, fh)
			}
		}
	}
	if strings.TrimSpace(jobDescription) == "" || len(files) == 0 {
		s.render(w, http.StatusOK, pageData{JobDescription: jobDescription, Message: msgMissingInput})
		return
	}

	runDir, docs, err := s.saveUploads(files)
	if runDir != "" && !s.cfg.KeepUploads {
		defer func() {
			if err := os.RemoveAll(runDir); err != nil {
				log.Warn().Err(err).Str("dir", runDir).Msg("Error removing uploads")
			}
		}()
	}
	if err != nil {
		log.Error().Err(err).Msg("Error saving uploads")
		s.render(w, http.StatusInternalServerError, pageData{JobDescription: jobDescription, Message: "Could not store the uploaded resumes."})
		return
	}

	result, err := s.matcher.Match(r.Context(), jobDescription, docs, 0)
	switch {
	case errors.Is(err, models.ErrEmptyCorpus):
		s.render(w, http.StatusUnprocessableEntity, pageData{JobDescription: jobDescription, Message: msgEmptyCorpus})
		return
	case err != nil:
		log.Error().Err(err).Msg("Error matching resumes")
		s.render(w, http.StatusInternalServerError, pageData{JobDescription: jobDescription, Message: "Matching failed: " + err.Error()})
		return
	}

	s.render(w, http.StatusOK, pageData{
		JobDescription: jobDescription,
		Message:        msgTopResumes,
		Results:        result.Ranked,
		Warnings:       result.Warnings,
	})
}

// saveUploads writes each upload to its own file under a fresh run folder and
// returns path-backed documents in upload order. The document ID is the
// original filename.
func (s *Server) saveUploads(files []*multipart.FileHeader) (string, []models.Document, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return "", nil, err
	}
	runDir := filepath.Join(s.cfg.UploadDir, id)
	if err := helper.CreateFolder(runDir); err != nil {
		return "", nil, err
	}

	docs := make([]models.Document, 0, len(files))
	for i, fh := range files {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		// The index prefix keeps two uploads with the same name apart.
		path := filepath.Join(runDir, fmt.Sprintf("%03d_%s", i, name))
		if err := saveFile(fh, path); err != nil {
			return runDir, nil, fmt.Errorf("saving %s: %w", fh.Filename, err)
		}
		docs = append(docs, models.Document{
			ID:     fh.Filename,
			Path:   path,
			Format: models.FormatFromFilename(fh.Filename),
		})
	}
	return runDir, docs, nil
}

func saveFile(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Error rendering template")
	}
}

type matchRequest struct {
	JobDescription string             `json:"job_description"`
	TopK           int                `json:"top_k"`
	Candidates     []candidatePayload `json:"candidates"`
}

// candidatePayload carries either inline text or a base64 file body whose
// format comes from Filename.
type candidatePayload struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	Content  []byte `json:"content,omitempty"`
}

type matchResponse struct {
	*models.MatchResult
	DurationMS int64 `json:"duration_ms"`
}

func (c candidatePayload) document(i int) models.Document {
	id := c.ID
	if id == "" {
		id = c.Filename
	}
	if id == "" {
		id = fmt.Sprintf("candidate-%d", i+1)
	}
	if c.Content == nil {
		return models.Document{ID: id, Data: []byte(c.Text), Format: models.FormatInlineText}
	}
	name := c.Filename
	if name == "" {
		name = id
	}
	return models.Document{ID: id, Data: c.Content, Format: models.FormatFromFilename(name)}
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	docs := make([]models.Document, len(req.Candidates))
	for i, c := range req.Candidates {
		docs[i] = c.document(i)
	}
	if err := matcher.ValidateRequest(req.JobDescription, docs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "top_k must be non-negative")
		return
	}

	result, err := s.matcher.Match(r.Context(), req.JobDescription, docs, req.TopK)
	switch {
	case errors.Is(err, models.ErrEmptyCorpus):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Msg("Error matching candidates")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, matchResponse{MatchResult: result, DurationMS: result.Duration.Milliseconds()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "match history is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.MatchRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "match history is disabled")
		return
	}
	run, entries, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
