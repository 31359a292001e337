package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/alertx/alertx/internal/gemini"
)

const (
	// defaultText mirrors the form default when no text field is sent.
	defaultText = "Analyze this video"

	// maxUploadBytes caps the multipart form memory + spool size.
	maxUploadBytes = 100 << 20 // 100 MiB
)

// allowedVideoTypes is the content-type allowlist for uploads.
var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-msvideo":  true,
	"video/x-matroska": true,
	"video/3gpp":       true,
}

// POST /analyze
//
// Accepts multipart form fields `text` (optional) and `video` (optional
// binary attachment) and responds with a line-delimited JSON event
// stream. The uploaded video is spooled to a temporary file owned by
// this request and removed on every exit path.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	text := r.FormValue("text")
	if text == "" {
		text = defaultText
	}

	var media *gemini.Blob
	file, header, err := r.FormFile("video")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Text-only request.
	case err != nil:
		httpError(w, http.StatusBadRequest, "read video field: "+err.Error())
		return
	default:
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		// Parse before the lookup: headers like "video/mp4; codecs=avc1"
		// carry parameters the allowlist must ignore.
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || !allowedVideoTypes[mediaType] {
			httpError(w, http.StatusBadRequest, "unsupported video content type: "+contentType)
			return
		}
		contentType = mediaType

		tempPath, data, err := spoolUpload(file)
		if tempPath != "" {
			// Temporary blob removal is unconditional: success, failure,
			// and client disconnect all pass through this defer.
			defer func() {
				if rmErr := os.Remove(tempPath); rmErr != nil {
					log.Warn().Err(rmErr).Str("path", tempPath).Msg("Failed to remove temp video")
				} else {
					log.Debug().Str("path", tempPath).Msg("Temp video removed")
				}
			}()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "store upload: "+err.Error())
			return
		}

		log.Info().
			Str("filename", header.Filename).
			Str("content_type", contentType).
			Int("bytes", len(data)).
			Msg("Video upload received")

		media = &gemini.Blob{MIMEType: contentType, Data: data}
	}

	ew := newEventWriter(w)
	s.ctrl.Run(r.Context(), RunInput{Text: text, Media: media}, ew)
}

// spoolUpload writes the upload to a temp file and returns its path and
// contents. The path is returned even on error so the caller can clean
// up a partial spool.
func spoolUpload(file io.Reader) (string, []byte, error) {
	tmp, err := os.CreateTemp("", "alertx-upload-*.bin")
	if err != nil {
		return "", nil, err
	}
	path := tmp.Name()

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		return path, nil, err
	}
	if err := tmp.Close(); err != nil {
		return path, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return path, nil, err
	}
	return path, data, nil
}
