package rooms

import (
	"net/http"
	"notes-collab/collab"
	"notes-collab/core"
	"notes-collab/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// PresenceSource is the read side of the room registry.
type PresenceSource interface {
	Rooms() []collab.RoomInfo
	Presence(documentID string) []collab.PresenceEntry
}

// HandleList lists the rooms that currently have members.
func HandleList(source PresenceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, source.Rooms())
	}
}

// HandlePresence lists who is in a document's room. The caller needs at
// least VIEWER access to the document.
func HandlePresence(source PresenceSource, store core.DocumentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.IdentityFrom(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "User identity not found"})
			return
		}

		documentID := chi.URLParam(r, "documentId")
		access, err := store.GetAccess(r.Context(), documentID, identity.UserID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"document_id": documentID,
				"user_id":     identity.UserID,
			}).WithError(err).Error("Failed to check document access")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to check access"})
			return
		}
		if !access.CanView() {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, map[string]string{"error": "Access denied"})
			return
		}

		render.JSON(w, r, source.Presence(documentID))
	}
}
