package detect

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testFrame(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestDetectFacesNormalizesOutput(t *testing.T) {
	var gotThreshold string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect/faces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotThreshold = r.FormValue("threshold")
		w.Header().Set("Content-Type", "application/json")
		// Second bbox is malformed, third degenerate - both must be dropped.
		w.Write([]byte(`{"faces":[
			{"bbox":[10,20,110,120],"score":0.92},
			{"bbox":[10,20,110],"score":0.88},
			{"bbox":[50,50,50,80],"score":0.77}
		],"model":"centerface"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	dets, err := client.DetectFaces(context.Background(), testFrame(640, 480), 0.4)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}

	if gotThreshold != "0.4" {
		t.Errorf("threshold field = %q, want 0.4", gotThreshold)
	}
	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1 (malformed boxes dropped)", len(dets))
	}
	if dets[0].Box.X1 != 10 || dets[0].Box.Y2 != 120 {
		t.Errorf("unexpected box %v", dets[0].Box)
	}
	if dets[0].Score != 0.92 {
		t.Errorf("score = %v, want 0.92", dets[0].Score)
	}
}

func TestDetectPersonsKeepsClassID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[
			{"bbox":[0,0,100,200],"class_id":0,"score":0.9},
			{"bbox":[200,0,300,200],"class_id":16,"score":0.8}
		],"model":"yolo"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	dets, err := client.DetectPersons(context.Background(), testFrame(640, 480))
	if err != nil {
		t.Fatalf("DetectPersons failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}

	persons := Persons(dets, 0.3)
	if len(persons) != 1 {
		t.Fatalf("Persons filter kept %d, want 1", len(persons))
	}
	if persons[0].ClassID != PersonClassID {
		t.Errorf("ClassID = %d, want %d", persons[0].ClassID, PersonClassID)
	}
}

func TestExtractEmbeddingEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embedding":[],"dim":0}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.ExtractEmbedding(context.Background(), testFrame(128, 256))
	if err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.DetectFaces(context.Background(), testFrame(64, 64), 0.4)
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestPersonsFilterOrderPreserved(t *testing.T) {
	dets := []PersonDetection{
		{ClassID: 0, Score: 0.5},
		{ClassID: 0, Score: 0.2},
		{ClassID: 0, Score: 0.9},
	}
	persons := Persons(dets, 0.3)
	if len(persons) != 2 {
		t.Fatalf("got %d, want 2", len(persons))
	}
	if persons[0].Score != 0.5 || persons[1].Score != 0.9 {
		t.Errorf("detector output order not preserved: %v", persons)
	}
}
