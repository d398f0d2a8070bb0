package collab

import "notes-collab/core"

// Inbound events.
const (
	EventAuthenticate = "authenticate"
	EventJoin         = "join"
	EventLeave        = "leave"
	EventSubmitEdit   = "submitEdit"
	EventCursorMove   = "cursorMove"
)

// Outbound events.
const (
	EventAuthenticated    = "authenticated"
	EventPresenceSnapshot = "presenceSnapshot"
	EventPeerJoined       = "peerJoined"
	EventPeerLeft         = "peerLeft"
	EventEditApplied      = "editApplied"
	EventEditConfirmed    = "editConfirmed"
	EventEditConflict     = "editConflict"
	EventCursorUpdate     = "cursorUpdate"
	EventError            = "error"
)

type (
	PresenceEntry struct {
		UserID       string `json:"userId"`
		DisplayName  string `json:"displayName"`
		ConnectionID string `json:"connectionId"`
	}

	Authenticated struct {
		UserID       string `json:"userId"`
		DisplayName  string `json:"displayName"`
		ConnectionID string `json:"connectionId"`
	}

	EditApplied struct {
		Content string        `json:"content"`
		Version core.Version  `json:"version"`
		ByUser  core.Identity `json:"byUser"`
	}

	EditConfirmed struct {
		Version core.Version `json:"version"`
	}

	EditConflict struct {
		CurrentContent string       `json:"currentContent"`
		CurrentVersion core.Version `json:"currentVersion"`
	}

	CursorUpdate struct {
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
		Position    any    `json:"position"`
	}
)
