package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fmueller/voxbatch/internal/batch"
	"github.com/fmueller/voxbatch/internal/media"
	"github.com/fmueller/voxbatch/internal/whisper"
)

const (
	multipartMemory = 32 << 20
	maxFormBytes    = 1 << 20
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, s.newPage())
}

func (s *Server) handleTranscribeFiles(w http.ResponseWriter, r *http.Request) {
	page := s.newPage()

	headers, cleanup, err := s.parseUpload(w, r)
	if err != nil {
		page.Message, page.IsError = displayMessage(err), true
		s.renderPage(w, uploadErrorStatus(err), page)
		return
	}
	defer cleanup()

	model, language, err := s.selection(r.FormValue("model"), r.FormValue("language"))
	if err != nil {
		page.Message, page.IsError = displayMessage(err), true
		s.renderPage(w, http.StatusBadRequest, page)
		return
	}
	page.Model, page.Language = model, language

	dir, items, err := spoolUploads(s.opts.TempDir, headers)
	if err != nil {
		s.log.Error("failed to store uploads", zap.Error(err))
		page.Message, page.IsError = "Could not store uploaded files", true
		s.renderPage(w, http.StatusInternalServerError, page)
		return
	}
	if dir != "" {
		defer s.removeSpool(dir)
	}

	s.runPage(r.Context(), w, page, func(ctx context.Context) (batch.Report, error) {
		return s.opts.Runner.Run(ctx, items, model, language)
	})
}

func (s *Server) handleTranscribeFolder(w http.ResponseWriter, r *http.Request) {
	page := s.newPage()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		page.Message, page.IsError = "Invalid form submission", true
		s.renderPage(w, http.StatusBadRequest, page)
		return
	}

	folder := strings.TrimSpace(r.FormValue("folder"))
	page.Folder = folder

	model, language, err := s.selection(r.FormValue("model"), r.FormValue("language"))
	if err != nil {
		page.Message, page.IsError = displayMessage(err), true
		s.renderPage(w, http.StatusBadRequest, page)
		return
	}
	page.Model, page.Language = model, language

	s.runPage(r.Context(), w, page, func(ctx context.Context) (batch.Report, error) {
		return s.opts.Runner.RunFolder(ctx, folder, model, language)
	})
}

func (s *Server) runPage(ctx context.Context, w http.ResponseWriter, page *pageData, run func(context.Context) (batch.Report, error)) {
	report, id, err := s.execute(ctx, run)
	if err != nil {
		page.Message, page.IsError = displayMessage(err), true
		status := errorStatus(err)
		if errors.Is(err, batch.ErrEmptyInput) {
			status = http.StatusOK
		}
		s.renderPage(w, status, page)
		return
	}

	page.Report = report.Text()
	page.ReportID = id
	page.Succeeded = report.Succeeded()
	page.Failed = report.Failed()
	s.renderPage(w, http.StatusOK, page)
}

// execute runs a batch and stores its report for download.
func (s *Server) execute(ctx context.Context, run func(context.Context) (batch.Report, error)) (batch.Report, string, error) {
	report, err := run(ctx)
	if err != nil {
		return batch.Report{}, "", err
	}

	id, err := s.opts.Reports.Save(report)
	if err != nil {
		s.log.Error("failed to persist report", zap.Error(err))
		return batch.Report{}, "", fmt.Errorf("could not save report: %w", err)
	}
	return report, id, nil
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, ok := s.opts.Reports.Path(id)
	if !ok {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "report not found", http.StatusNotFound)
			return
		}
		s.log.Error("failed to open report", zap.String("path", path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="transcription-%s.txt"`, id))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.opts.Version,
	})
}

type optionsResponse struct {
	Models          []string           `json:"models"`
	DefaultModel    string             `json:"default_model"`
	Languages       []whisper.Language `json:"languages"`
	DefaultLanguage string             `json:"default_language"`
	AudioExtensions []string           `json:"audio_extensions"`
	VideoExtensions []string           `json:"video_extensions"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	languages := append([]whisper.Language{{Code: whisper.AutoLanguage, Name: "Detect automatically"}}, whisper.Languages()...)
	writeJSON(w, http.StatusOK, optionsResponse{
		Models:          whisper.ModelNames(),
		DefaultModel:    s.defaultModel(),
		Languages:       languages,
		DefaultLanguage: s.defaultLanguage(),
		AudioExtensions: media.AudioExtensions,
		VideoExtensions: media.VideoExtensions,
	})
}

type apiFolderRequest struct {
	Folder   string `json:"folder"`
	Model    string `json:"model"`
	Language string `json:"language"`
}

type apiResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Stage     string `json:"stage,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type apiReport struct {
	ID        string      `json:"id"`
	Model     string      `json:"model"`
	Language  string      `json:"language"`
	ReportURL string      `json:"report_url"`
	Text      string      `json:"text"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	ElapsedMS int64       `json:"elapsed_ms"`
	Results   []apiResult `json:"results"`
}

// handleAPITranscribe accepts either a multipart upload (field "files") or a
// JSON body naming a server-side folder.
func (s *Server) handleAPITranscribe(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var run func(context.Context) (batch.Report, error)
	switch mediaType {
	case "application/json":
		var req apiFolderRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		model, language, err := s.selection(req.Model, req.Language)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		run = func(ctx context.Context) (batch.Report, error) {
			return s.opts.Runner.RunFolder(ctx, strings.TrimSpace(req.Folder), model, language)
		}

	case "multipart/form-data":
		headers, cleanup, err := s.parseUpload(w, r)
		if err != nil {
			writeError(w, uploadErrorStatus(err), err.Error())
			return
		}
		defer cleanup()

		model, language, err := s.selection(r.FormValue("model"), r.FormValue("language"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		dir, items, err := spoolUploads(s.opts.TempDir, headers)
		if err != nil {
			s.log.Error("failed to store uploads", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not store uploaded files")
			return
		}
		if dir != "" {
			defer s.removeSpool(dir)
		}
		run = func(ctx context.Context) (batch.Report, error) {
			return s.opts.Runner.Run(ctx, items, model, language)
		}

	default:
		writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/json")
		return
	}

	report, id, err := s.execute(r.Context(), run)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newAPIReport(id, report))
}

func newAPIReport(id string, report batch.Report) apiReport {
	out := apiReport{
		ID:        id,
		Model:     report.Model,
		Language:  report.Language,
		ReportURL: "/reports/" + id,
		Text:      report.Text(),
		Succeeded: report.Succeeded(),
		Failed:    report.Failed(),
		ElapsedMS: report.Elapsed.Milliseconds(),
		Results:   make([]apiResult, len(report.Results)),
	}
	for i, result := range report.Results {
		item := apiResult{
			Name:      result.Name,
			OK:        result.OK(),
			Text:      result.Text,
			ElapsedMS: result.Elapsed.Milliseconds(),
		}
		if result.Err != nil {
			item.Error = result.Err.Error()
			var itemErr *batch.ItemError
			if errors.As(result.Err, &itemErr) {
				item.Stage = string(itemErr.Stage)
			}
		}
		out.Results[i] = item
	}
	return out
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) ([]*multipart.FileHeader, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("upload exceeds %d bytes: %w", tooLarge.Limit, err)
		}
		return nil, nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	cleanup := func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.log.Warn("failed to remove multipart spool", zap.Error(err))
		}
	}
	return r.MultipartForm.File["files"], cleanup, nil
}

// selection validates the model and language chosen for a batch, applying
// the configured defaults to blank values.
func (s *Server) selection(model, language string) (string, string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = s.defaultModel()
	}
	if model != s.defaultModel() && !whisper.IsKnownModel(model) {
		return "", "", fmt.Errorf("unknown model %q", model)
	}

	if strings.TrimSpace(language) == "" {
		language = s.defaultLanguage()
	}
	language, err := whisper.ValidateLanguage(language)
	if err != nil {
		return "", "", err
	}
	return model, language, nil
}

// spoolUploads copies each upload into its own subdirectory of a fresh
// request directory so duplicate file names keep their display names.
func spoolUploads(parent string, headers []*multipart.FileHeader) (string, []batch.Item, error) {
	if len(headers) == 0 {
		return "", nil, nil
	}

	dir, err := os.MkdirTemp(parent, "voxbatch-upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("create upload dir: %w", err)
	}

	items := make([]batch.Item, 0, len(headers))
	for i, header := range headers {
		name := uploadName(header.Filename)
		sub := filepath.Join(dir, strconv.Itoa(i))
		if err := os.Mkdir(sub, 0o700); err != nil {
			return "", nil, errors.Join(fmt.Errorf("create upload dir: %w", err), os.RemoveAll(dir))
		}

		path := filepath.Join(sub, name)
		if err := copyUpload(header, path); err != nil {
			return "", nil, errors.Join(err, os.RemoveAll(dir))
		}
		items = append(items, batch.Item{Path: path, Name: name})
	}
	return dir, items, nil
}

func copyUpload(header *multipart.FileHeader, dst string) error {
	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// uploadName strips any client-supplied directories from filename.
func uploadName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "upload"
	}
	return name
}

func (s *Server) removeSpool(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("failed to remove upload dir", zap.String("dir", dir), zap.Error(err))
	}
}

func (s *Server) newPage() *pageData {
	return &pageData{
		Models:    whisper.ModelNames(),
		Languages: whisper.Languages(),
		Model:     s.defaultModel(),
		Language:  s.defaultLanguage(),
		Accept:    acceptAttr(),
		Version:   s.opts.Version,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, status int, page *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := renderIndex(w, page); err != nil {
		s.log.Error("failed to render page", zap.Error(err))
	}
}

func (s *Server) defaultModel() string {
	if s.opts.DefaultModel == "" {
		return whisper.DefaultModel
	}
	return s.opts.DefaultModel
}

func (s *Server) defaultLanguage() string {
	if s.opts.DefaultLanguage == "" {
		return whisper.AutoLanguage
	}
	return s.opts.DefaultLanguage
}

func uploadErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func errorStatus(err error) int {
	var persistErr *batch.PersistError
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, batch.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.As(err, &persistErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &pathErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

