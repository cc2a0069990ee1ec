package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"blogpilot/internal/domain"
	"blogpilot/internal/upload"
)

// Upload accepts one image in the multipart field "file". The declared
// content type is ignored; the bytes decide.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.fail(w, r, upload.ErrTooLarge)
			return
		}
		a.fail(w, r, fmt.Errorf("%w: expected multipart form: %v", domain.ErrInvalidInput, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, _, err := r.FormFile("file")
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: file field is required", domain.ErrInvalidInput))
		return
	}
	defer file.Close()

	res, err := a.Uploads.Upload(r.Context(), a.currentUserID(r), file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"upload": res})
}
