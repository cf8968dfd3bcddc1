package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/devaloi/roomrelay/internal/upload"
)

// Upload accepts a multipart form with a "file" field and stores it. The
// response is the descriptor clients attach to a fileMessage.
func Upload(files *upload.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Leave room for multipart framing around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, files.MaxBytes()+1<<20)

		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file")
			return
		}
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "No file")
				return
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, "Malformed upload")
				return
			}
			if part.FormName() != "file" || part.FileName() == "" {
				part.Close()
				continue
			}

			f, err := files.Save(part.FileName(), part.Header.Get("Content-Type"), part)
			part.Close()
			switch {
			case errors.Is(err, upload.ErrUnsupportedType):
				writeError(w, http.StatusBadRequest, "Unsupported file type")
			case errors.Is(err, upload.ErrTooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			case err != nil:
				log.Error("upload failed", "err", err)
				writeError(w, http.StatusInternalServerError, msgInternal)
			default:
				log.Info("file uploaded", "name", f.Name, "size", f.Size, "mime", f.Mime)
				writeJSON(w, http.StatusOK, f)
			}
			return
		}
	}
}
