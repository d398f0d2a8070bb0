package documents

import (
	"errors"
	"net/http"
	"notes-collab/core"
	"notes-collab/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type DocumentResponse struct {
	ID      string       `json:"id"`
	Content string       `json:"content"`
	Version core.Version `json:"version"`
}

// HandleGet returns a document's content and current version, the base
// version a client needs before submitting edits.
func HandleGet(store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFrom(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User identity not found"})
			return
		}

		documentID := chi.URLParam(r, "documentId")
		log := logrus.WithFields(logrus.Fields{
			"document_id": documentID,
			"user_id":     identity.UserID,
		})

		access, err := store.GetAccess(r.Context(), documentID, identity.UserID)
		if err != nil {
			log.WithError(err).Error("Failed to check document access")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to check access"})
			return
		}
		if !access.CanView() {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Access denied"})
			return
		}

		doc, err := store.Read(r.Context(), documentID)
		if errors.Is(err, core.ErrNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Document not found"})
			return
		}
		if err != nil {
			log.WithError(err).Error("Failed to read document")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read document"})
			return
		}

		render.JSON(w, r, DocumentResponse{ID: doc.ID, Content: doc.Content, Version: doc.Version})
	}
}
