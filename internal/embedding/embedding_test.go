package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// createTestImage creates a solid color test image
func createTestImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestComputeFaceEmbeddings(t *testing.T) {
	imageData := encodeJPEG(createTestImage(10, 10, color.White))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("expected path /embed/face, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("expected part Content-Type image/jpeg, got %s", ct)
		}
		got, _ := io.ReadAll(file)
		if !bytes.Equal(got, imageData) {
			t.Error("uploaded image bytes do not match")
		}

		json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 2,
			Model:      "buffalo_l",
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 3, Embedding: []float32{1, 0, 0}, BBox: []float64{1, 2, 3, 4}, DetScore: 0.98},
				{FaceIndex: 1, Dim: 3, Embedding: []float32{0, 1, 0}, BBox: []float64{5, 6, 7, 8}, DetScore: 0.81},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	resp, err := client.ComputeFaceEmbeddings(context.Background(), imageData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(resp.Faces))
	}
	if resp.Faces[1].DetScore != 0.81 {
		t.Errorf("expected det score 0.81, got %v", resp.Faces[1].DetScore)
	}
	if resp.Model != "buffalo_l" {
		t.Errorf("expected model buffalo_l, got %s", resp.Model)
	}
}

func TestComputeFaceEmbeddings_NoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"faces_count": 0, "faces": [], "model": "buffalo_l"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).ComputeFaceEmbeddings(context.Background(), []byte("not-an-image"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Faces) != 0 {
		t.Errorf("expected no faces, got %d", len(resp.Faces))
	}
}

func TestComputeFaceEmbeddings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "model not loaded", "status 500"},
		{"invalid json", http.StatusOK, "{", "failed to parse response"},
		{"empty embedding", http.StatusOK, `{"faces": [{"face_index": 0, "embedding": []}]}`, "empty embedding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).ComputeFaceEmbeddings(context.Background(), []byte("data"))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing '%s', got '%v'", tt.wantErr, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	var unhealthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected path /health, got %s", r.URL.Path)
		}
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	unhealthy.Store(true)
	if err := client.Health(context.Background()); err == nil {
		t.Error("expected error for unhealthy server")
	}
}

func TestDetectMIMEType(t *testing.T) {
	img := createTestImage(8, 8, color.Black)

	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{"jpeg", encodeJPEG(img), "image/jpeg"},
		{"png", encodePNG(img), "image/png"},
		{"short", []byte{0xFF, 0xD8}, "application/octet-stream"},
		{"unknown", []byte("plain text data"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestResizeImage_NoResizeNeeded(t *testing.T) {
	data := encodePNG(createTestImage(100, 80, color.White))

	resized, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage failed: %v", err)
	}

	if resized.Width != 100 || resized.Height != 80 {
		t.Errorf("expected 100x80, got %dx%d", resized.Width, resized.Height)
	}

	// PNG input is re-encoded as JPEG
	_, format, err := image.Decode(bytes.NewReader(resized.Data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg format, got %s", format)
	}
}

func TestResizeImage_NeedsResize(t *testing.T) {
	tests := []struct {
		name           string
		width, height  int
		maxSize        int
		expectedWidth  int
		expectedHeight int
	}{
		{"landscape", 2000, 1000, 500, 500, 250},
		{"portrait", 1000, 2000, 500, 250, 500},
		{"square", 1200, 1200, 600, 600, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodeJPEG(createTestImage(tt.width, tt.height, color.White))

			resized, err := ResizeImage(data, tt.maxSize)
			if err != nil {
				t.Fatalf("ResizeImage failed: %v", err)
			}

			decoded, _, err := image.Decode(bytes.NewReader(resized.Data))
			if err != nil {
				t.Fatalf("failed to decode resized image: %v", err)
			}
			bounds := decoded.Bounds()
			if bounds.Dx() != tt.expectedWidth || bounds.Dy() != tt.expectedHeight {
				t.Errorf("expected %dx%d, got %dx%d", tt.expectedWidth, tt.expectedHeight, bounds.Dx(), bounds.Dy())
			}
			if resized.Width != tt.expectedWidth || resized.Height != tt.expectedHeight {
				t.Errorf("reported %dx%d, expected %dx%d", resized.Width, resized.Height, tt.expectedWidth, tt.expectedHeight)
			}
		})
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	if _, err := ResizeImage([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid image data")
	}
}
