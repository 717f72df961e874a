package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"watercheck/db"
	"watercheck/ml"
)

const validBody = `{"pH": 7.1, "TDS": "300", "Turbidity": 2.0, "Temperature": 25, "Dissolved_Oxygen": "6.5"}`

func TestHandlePredict(t *testing.T) {
	store := &memStore{}
	publisher := &recordingPublisher{}
	handler := newTestHandler(&fakePredictor{label: ml.Potable}, store, publisher)

	w := doRequest(handler, http.MethodPost, "/predict", validBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		Timestamp string             `json:"timestamp"`
		Inputs    map[string]float64 `json:"inputs"`
		Result    string             `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Result != "Potable" {
		t.Fatalf("unexpected result: %v", payload.Result)
	}
	if payload.Timestamp != "2024-05-01T12:00:01.000000Z" {
		t.Fatalf("unexpected timestamp: %v", payload.Timestamp)
	}
	expected := map[string]float64{"pH": 7.1, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6.5}
	for key, value := range expected {
		if payload.Inputs[key] != value {
			t.Fatalf("inputs[%s] = %v, want %v", key, payload.Inputs[key], value)
		}
	}

	if store.count() != 1 {
		t.Fatalf("expected one stored record, got %d", store.count())
	}
	if store.records[0].Result != payload.Result {
		t.Fatalf("stored result %q differs from response %q", store.records[0].Result, payload.Result)
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("expected one published record, got %d", len(publisher.messages))
	}
}

func TestHandlePredictRejectsInput(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{
			name:    "non numeric",
			body:    `{"pH": "abc", "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6}`,
			message: "Invalid value for ph: abc",
		},
		{
			name:    "missing field",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": 25}`,
			message: "Missing required field: dissolvedoxygen",
		},
		{
			name:    "not an object",
			body:    `[7, 300, 2, 25, 6]`,
			message: "Invalid input format",
		},
		{
			name:    "not json",
			body:    `pH=7`,
			message: "Invalid input format",
		},
		{
			name:    "trailing data",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6} trailing-garbage`,
			message: "Invalid input format",
		},
		{
			name:    "two objects",
			body:    `{"pH": 7, "TDS": 300, "Turbidity": 2, "Temperature": 25, "Dissolved Oxygen": 6} {}`,
			message: "Invalid input format",
		},
		{
			name:    "null body",
			body:    `null`,
			message: "Invalid input format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memStore{}
			predictor := &fakePredictor{label: ml.Potable}
			handler := newTestHandler(predictor, store, nil)

			w := doRequest(handler, http.MethodPost, "/predict", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if msg := decodeError(t, w); !strings.Contains(msg, tc.message) {
				t.Fatalf("expected %q in %q", tc.message, msg)
			}
			if store.count() != 0 {
				t.Fatalf("expected no stored record, got %d", store.count())
			}
			if predictor.calls != 0 {
				t.Fatalf("model should not run for rejected input")
			}
		})
	}
}

func TestHandlePredictInferenceError(t *testing.T) {
	store := &memStore{}
	predictor := &fakePredictor{err: &ml.InferenceError{Op: "load artifacts", Err: errors.New("model file missing")}}
	handler := newTestHandler(predictor, store, nil)

	w := doRequest(handler, http.MethodPost, "/predict", validBody)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := decodeError(t, w); !strings.Contains(msg, "model file missing") {
		t.Fatalf("unexpected error: %q", msg)
	}
	if store.count() != 0 {
		t.Fatalf("expected no stored record")
	}
}

func TestHandlePredictStorageError(t *testing.T) {
	publisher := &recordingPublisher{}
	store := &memStore{appendErr: errors.New("disk full")}
	handler := newTestHandler(&fakePredictor{label: ml.Potable}, store, publisher)

	w := doRequest(handler, http.MethodPost, "/predict", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "Potable") {
		t.Fatalf("verdict must not be reported when logging fails: %s", w.Body.String())
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("nothing should be published when logging fails")
	}
}

func TestHandlePredictBodyTooLarge(t *testing.T) {
	store := &memStore{}
	handler := NewHandler(HandlerOptions{Predictor: &fakePredictor{label: ml.Potable}, Store: store})
	mux := http.NewServeMux()
	handler.Register(mux)
	config := DefaultServerConfig()
	config.MaxBodyBytes = 16
	router := NewRouter(config, mux, nil)

	w := doRequest(router, http.MethodPost, "/predict", validBody)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if store.count() != 0 {
		t.Fatalf("expected no stored record")
	}
}

func TestPredictRoundTripWithSQLite(t *testing.T) {
	store, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "logs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	tree, err := ml.NewDecisionTree([]ml.TreeNode{
		{FeatureIdx: 0, Threshold: 6.5, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 0, IsLeaf: true},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 1, IsLeaf: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	predictor := ml.NewPredictor(&ml.Artifacts{Model: tree}, nil)
	handler := newTestHandler(predictor, store, nil)

	bodies := map[string]string{
		"Potable":     validBody,
		"Not Potable": `{"ph": "5.5", "tds": 300, "turbidity": 2, "temperature": 25, "dissolved oxygen": 6.5}`,
	}
	for expected, body := range bodies {
		w := doRequest(handler, http.MethodPost, "/predict", body)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var response db.LogRecord
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatal(err)
		}
		if response.Result != expected {
			t.Fatalf("expected %q, got %q", expected, response.Result)
		}

		stored, err := store.ReadAll(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(stored) != 1 || stored[0].Result != response.Result || stored[0].Timestamp != response.Timestamp {
			t.Fatalf("stored row %+v does not match response %+v", stored, response)
		}
	}

	// Rejected input leaves the table untouched.
	doRequest(handler, http.MethodPost, "/predict", `{"pH": "abc"}`)
	all, err := store.ReadAll(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}
