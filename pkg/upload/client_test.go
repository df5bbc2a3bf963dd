package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(token string) TokenProvider {
	return func() (string, error) { return token, nil }
}

func TestUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(10<<20))
		assert.Equal(t, "conv-1", r.FormValue("conversation_id"))
		assert.Equal(t, "user-2", r.FormValue("receiver_id"))

		file, header, err := r.FormFile("media")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.jpg", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("image bytes"), data)

		json.NewEncoder(w).Encode(uploadResponse{
			Success: true,
			Data: &Result{
				URL:          "https://cdn.example.com/photo.jpg",
				ThumbnailURL: "https://cdn.example.com/photo_thumb.jpg",
				MimeType:     "image/jpeg",
				Size:         11,
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticToken("test-token"), time.Second, 1)
	result, err := client.Upload(context.Background(), "conv-1", "user-2", "photo.jpg", []byte("image bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/photo.jpg", result.URL)
	assert.Equal(t, "image/jpeg", result.MimeType)
}

func TestUploadSizeLimit(t *testing.T) {
	client := NewClient("http://unused", staticToken("t"), time.Second, 1)
	data := make([]byte, 2<<20)

	_, err := client.Upload(context.Background(), "conv-1", "", "big.bin", data)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}

func TestUploadServerRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "file too large"})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticToken("t"), time.Second, 1)
	_, err := client.Upload(context.Background(), "conv-1", "", "a.jpg", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeServerRejection, apperrors.GetCode(err))
	assert.Equal(t, "file too large", apperrors.GetUserMessage(err))
}

func TestUploadMissingURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(uploadResponse{Success: true, Data: &Result{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticToken("t"), time.Second, 1)
	_, err := client.Upload(context.Background(), "conv-1", "", "a.jpg", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUpload, apperrors.GetCode(err))
}

func TestMimeTypeForFilename(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"photo.jpg", "image/jpeg"},
		{"photo.JPG", "image/jpeg"},
		{"clip.mp4", "video/mp4"},
		{"voice.ogg", "audio/ogg"},
		{"doc.pdf", "application/pdf"},
		{"unknown.xyz", "application/octet-stream"},
		{"noextension", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, MimeTypeForFilename(tt.filename))
		})
	}
}

func TestKindForMimeType(t *testing.T) {
	assert.Equal(t, models.KindImage, KindForMimeType("image/png"))
	assert.Equal(t, models.KindVideo, KindForMimeType("video/mp4"))
	assert.Equal(t, models.KindAudio, KindForMimeType("audio/mpeg"))
	assert.Equal(t, models.KindFile, KindForMimeType("application/pdf"))
	assert.Equal(t, models.KindFile, KindForMimeType(""))
}
