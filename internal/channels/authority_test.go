package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"safepulse/internal/alert"
)

func dispatchMessage() alert.Message {
	return alert.Message{
		Subject: "emergency_dispatch",
		Body:    `{"alert_id":"a1","latitude":22.57,"longitude":88.36}`,
	}
}

func TestAuthorityDispatchSuccess(t *testing.T) {
	t.Parallel()

	var gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Dispatch-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := NewAuthorityDispatch()
	if err := a.Send(context.Background(), srv.URL, dispatchMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotType != "emergency_dispatch" {
		t.Errorf("X-Dispatch-Type = %q, want emergency_dispatch", gotType)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if payload["alert_id"] != "a1" {
		t.Errorf("alert_id = %v, want a1", payload["alert_id"])
	}
}

func TestAuthorityDispatchClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewAuthorityDispatch()
	err := a.Send(context.Background(), srv.URL, dispatchMessage())
	if err == nil || !alert.IsPermanent(err) {
		t.Errorf("Send error = %v, want permanent", err)
	}
}

func TestAuthorityDispatchServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAuthorityDispatch()
	err := a.Send(context.Background(), srv.URL, dispatchMessage())
	if err == nil || alert.IsPermanent(err) {
		t.Errorf("Send error = %v, want transient", err)
	}
}

func TestAuthorityDispatchInvalidEndpointIsPermanent(t *testing.T) {
	t.Parallel()

	a := NewAuthorityDispatch()
	err := a.Send(context.Background(), "dispatch.example/alerts", dispatchMessage())
	if err == nil || !alert.IsPermanent(err) {
		t.Errorf("Send error = %v, want permanent for non-http endpoint", err)
	}
}
