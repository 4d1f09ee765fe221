package mission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMission(t *testing.T) {
	var received Spec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/missions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"mission_id": "m-42"})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second)
	missionID, err := d.StartMission(context.Background(), Spec{
		Title:  "Diagnose workload health",
		Type:   "diagnose",
		Prompt: "check the pods",
	})
	require.NoError(t, err)
	assert.Equal(t, "m-42", missionID)
	assert.Equal(t, "diagnose", received.Type)
	assert.Equal(t, "check the pods", received.Prompt)
}

func TestStartMissionRunnerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second)
	_, err := d.StartMission(context.Background(), Spec{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestStartMissionEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second)
	_, err := d.StartMission(context.Background(), Spec{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mission id")
}

func TestSendMessage(t *testing.T) {
	var gotPath, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotText = body["text"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second)
	require.NoError(t, d.SendMessage(context.Background(), "m-42", "execute the repairs"))
	assert.Equal(t, "/api/v1/missions/m-42/messages", gotPath)
	assert.Equal(t, "execute the repairs", gotText)
}

func TestSendMessageRunnerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mission not found", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, 5*time.Second)
	err := d.SendMessage(context.Background(), "m-missing", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
