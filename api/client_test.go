package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/medtalk/chat"
)

func TestFetchMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/conversations/conv-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "conv-1",
			"message_count": 2,
			"messages": []map[string]any{
				{"id": "srv-1", "role": "doctor", "original_text": "hello", "translated_text": "hola"},
				{"id": "srv-2", "role": "patient", "original_text": "gracias"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	messages, err := client.FetchMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "srv-1", messages[0].ID)
	assert.Equal(t, chat.RoleDoctor, messages[0].Role)
	assert.Equal(t, "hola", messages[0].TranslatedText)
}

func TestSendMessagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "conv-1", payload["conversation_id"])
		assert.Equal(t, "doctor", payload["role"])
		assert.Equal(t, "hello", payload["original_text"])
		assert.Equal(t, "en", payload["source_language"])
		assert.Equal(t, "es", payload["target_language"])
		assert.Equal(t, "rec.wav", payload["audio_path"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chat.Message{ID: "srv-1", Role: chat.RoleDoctor, OriginalText: "hello"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	msg, err := client.SendMessage(context.Background(), "conv-1", chat.Draft{
		Role:           chat.RoleDoctor,
		Text:           "hello",
		SourceLanguage: "en",
		TargetLanguage: "es",
		AudioPath:      "rec.wav",
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, chat.StatusConfirmed, msg.Status)
}

func TestSendMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "translation backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.SendMessage(context.Background(), "conv-1", chat.Draft{Role: chat.RoleDoctor, Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestUploadAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/audio/upload", r.URL.Path)

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "rec.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"filename": "stored_rec.wav"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "rec.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake"), 0644))

	client := NewClient(srv.URL)
	ref, err := client.UploadAudio(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "stored_rec.wav", ref)
}

func TestConversationLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "POST /conversations":
			json.NewEncoder(w).Encode(chat.Conversation{ID: "conv-1"})
		case "GET /conversations":
			json.NewEncoder(w).Encode([]chat.Conversation{{ID: "conv-1", MessageCount: 3}})
		case "DELETE /conversations/conv-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	conv, err := client.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)

	list, err := client.Conversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].MessageCount)

	require.NoError(t, client.DeleteConversation(ctx, "conv-1"))
}

func TestLanguages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/languages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]chat.Language{{Code: "en", Name: "English"}, {Code: "es", Name: "Spanish"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	languages, err := client.Languages(context.Background())
	require.NoError(t, err)
	require.Len(t, languages, 2)
	assert.Equal(t, "es", languages[1].Code)
}
