package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testTarget(host string) Target {
	return Target{Host: host, APIKey: "secret-key", InstanceID: "inst-01"}
}

func TestRequestQRCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance/connect/inst-01" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(ConnectResponse{Base64: "data:image/png;base64,iVBOR"})
	}))
	defer srv.Close()

	qr, err := NewClient().RequestQRCode(context.Background(), testTarget(srv.URL))
	if err != nil {
		t.Fatalf("RequestQRCode: %v", err)
	}
	if qr != "data:image/png;base64,iVBOR" {
		t.Fatalf("qr = %q", qr)
	}
}

func TestRequestPairingCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("number"); got != "5511999990000" {
			t.Errorf("number = %q", got)
		}
		json.NewEncoder(w).Encode(ConnectResponse{PairingCode: "ABCD-1234"})
	}))
	defer srv.Close()

	code, err := NewClient().RequestPairingCode(context.Background(), testTarget(srv.URL), "5511999990000")
	if err != nil {
		t.Fatalf("RequestPairingCode: %v", err)
	}
	if code != "ABCD-1234" {
		t.Fatalf("code = %q", code)
	}
}

func TestSendTextForwardsDelayAndPresence(t *testing.T) {
	var received SendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/message/sendText/inst-01" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SendTextResponse{Status: "PENDING"})
	}))
	defer srv.Close()

	resp, err := NewClient().SendText(context.Background(), testTarget(srv.URL), "5511999990000", "hello there", 4200)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if resp.Status != "PENDING" {
		t.Fatalf("status = %q", resp.Status)
	}
	if received.Number != "5511999990000" || received.TextMessage.Text != "hello there" {
		t.Fatalf("payload = %+v", received)
	}
	if received.Options.Delay != 4200 || received.Options.Presence != "composing" {
		t.Fatalf("options = %+v", received.Options)
	}
}

func TestRejectedStatusReturnsRejectedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"instance not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient().RequestQRCode(context.Background(), testTarget(srv.URL))
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("want RejectedError, got %v", err)
	}
	if rejected.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", rejected.StatusCode)
	}
}

func TestConnectionStateRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"instance": map[string]string{"instanceName": "inst-01", "state": StateOpen},
		})
	}))
	defer srv.Close()

	state, err := NewClient().ConnectionState(context.Background(), testTarget(srv.URL))
	if err != nil {
		t.Fatalf("ConnectionState: %v", err)
	}
	if state != StateOpen {
		t.Fatalf("state = %q", state)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestConnectionStateGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient().ConnectionState(context.Background(), testTarget(srv.URL))
	if err == nil {
		t.Fatal("want error after exhausting retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestSendTextIsNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient().SendText(context.Background(), testTarget(srv.URL), "5511999990000", "hi", 1000)
	if err == nil {
		t.Fatal("want error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestUnreachableGateway(t *testing.T) {
	target := Target{Host: "http://127.0.0.1:1", APIKey: "k", InstanceID: "inst-01"}
	err := NewClient().Logout(context.Background(), target)
	if !errors.Is(err, ErrUnreachable) && !errors.Is(err, ErrTimeout) {
		t.Fatalf("want unreachable or timeout, got %v", err)
	}
}
