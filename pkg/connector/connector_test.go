package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clidram/medrag/pkg/connector"
)

func newClient(t *testing.T, handler http.HandlerFunc) *connector.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return connector.NewClient(connector.Config{
		BaseURL: srv.URL,
		APIKey:  "secret",
	})
}

func TestFetchAll(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"id": 1, "name": "Ana Cole"},
				{"id": 2, "name": "Ben Ford"},
			},
		})
	})

	records, err := c.FetchAll(context.Background(), connector.KindPatient, nil, 50, 0)
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}

	if gotPath != "/api/rag/patients/fetch_all" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["limit"] != float64(50) {
		t.Errorf("expected limit 50 in body, got %v", gotBody["limit"])
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Int64("id") != 1 || records[1].Str("name") != "Ben Ford" {
		t.Errorf("unexpected records: %v", records)
	}
}

func TestFetchAllEmptyData(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": []any{}})
	})

	records, err := c.FetchAll(context.Background(), connector.KindDisease, nil, 0, 0)
	if err != nil {
		t.Fatalf("empty data should be success, got %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected 0 records, got %d", len(records))
	}
}

func TestFetchUnsyncedDomain(t *testing.T) {
	var gotBody struct {
		Domain [][]any `json:"domain"`
	}

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	if _, err := c.FetchUnsynced(context.Background(), connector.KindAppointment, 100); err != nil {
		t.Fatal(err)
	}

	if len(gotBody.Domain) != 1 {
		t.Fatalf("expected 1 domain condition, got %d", len(gotBody.Domain))
	}
	cond := gotBody.Domain[0]
	if cond[0] != "is_rag_synced" || cond[1] != "=" || cond[2] != false {
		t.Errorf("unexpected domain condition: %v", cond)
	}
}

func TestRemoteError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "boom"})
	})

	_, err := c.FetchAll(context.Background(), connector.KindPatient, nil, 0, 0)
	if !errors.Is(err, connector.ErrRemote) {
		t.Errorf("expected ErrRemote, got %v", err)
	}
}

func TestAuthError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := c.Ping(context.Background())
	if !errors.Is(err, connector.ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
}

func TestMarkSynced(t *testing.T) {
	var gotBody struct {
		Model  string  `json:"model"`
		ResIDs []int64 `json:"res_ids"`
	}

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rag/mark_synced" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "count": 2})
	})

	count, err := c.MarkSynced(context.Background(), connector.KindPrescription, []int64{10, 11, 12})
	if err != nil {
		t.Fatal(err)
	}

	if gotBody.Model != "prescription.order.knk" {
		t.Errorf("unexpected model %q", gotBody.Model)
	}
	if len(gotBody.ResIDs) != 3 {
		t.Errorf("expected 3 ids, got %d", len(gotBody.ResIDs))
	}
	// Partial counts are valid: records may have been deleted remotely.
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestMarkSyncedNoIDs(t *testing.T) {
	c := newClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected for empty id list")
	})

	count, err := c.MarkSynced(context.Background(), connector.KindPatient, nil)
	if err != nil || count != 0 {
		t.Errorf("expected no-op, got count=%d err=%v", count, err)
	}
}

func TestUnknownKind(t *testing.T) {
	c := connector.NewClient(connector.Config{})
	if _, err := c.FetchAll(context.Background(), "labtest", nil, 0, 0); err == nil {
		t.Error("expected error for unknown kind")
	}
}
