// Package viewer serves the reconciler's read-only message view over local
// HTTP so a browser or other rendering layer can follow the conversation.
package viewer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bosley/medtalk/chat"
)

type Viewer struct {
	rec     *chat.Reconciler
	session *chat.Session
	server  *http.Server
}

func New(addr string, rec *chat.Reconciler, session *chat.Session) *Viewer {
	v := &Viewer{
		rec:     rec,
		session: session,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/messages", v.handleMessages).Methods("GET")
	router.HandleFunc("/api/status", v.handleStatus).Methods("GET")

	v.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return v
}

// Run serves until the context ends.
func (v *Viewer) Run(ctx context.Context) error {
	go func() {
		if err := v.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("Viewer server error", "error", err)
		}
	}()

	slog.Info("Viewer listening", "addr", v.server.Addr)
	<-ctx.Done()
	return v.server.Shutdown(context.Background())
}

// handleMessages returns the current ordered message list.
func (v *Viewer) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages := v.rec.Messages()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(messages); err != nil {
		slog.Error("Failed to encode messages", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleStatus reports the active conversation and push channel state.
func (v *Viewer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		ConversationID string `json:"conversation_id"`
		Channel        string `json:"channel"`
		Messages       int    `json:"messages"`
	}{
		ConversationID: v.session.Active(),
		Channel:        v.session.ChannelStatus(),
		Messages:       len(v.rec.Messages()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
