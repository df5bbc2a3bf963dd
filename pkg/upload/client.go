package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"chatsync/internal/constants"
	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"
)

// TokenProvider supplies the bearer credential for upload requests.
type TokenProvider func() (string, error)

// Result is the durable location returned by the upload collaborator.
type Result struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size,omitempty"`
}

// Client uploads raw media bytes and returns a durable URL.
type Client interface {
	Upload(ctx context.Context, conversationID, receiverID, filename string, data []byte) (*Result, error)
}

type client struct {
	uploadURL  string
	token      TokenProvider
	httpClient *http.Client
	maxBytes   int64
}

type uploadResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Data    *Result `json:"data"`
}

// NewClient creates an upload client. maxSizeMB caps the accepted payload;
// zero means the default limit.
func NewClient(uploadURL string, token TokenProvider, timeout time.Duration, maxSizeMB int) Client {
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultUploadTimeoutSec) * time.Second
	}
	if maxSizeMB <= 0 {
		maxSizeMB = constants.DefaultMaxUploadSizeMB
	}
	return &client{
		uploadURL:  uploadURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
	}
}

func (c *client) Upload(ctx context.Context, conversationID, receiverID, filename string, data []byte) (*Result, error) {
	if int64(len(data)) > c.maxBytes {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "media exceeds size limit").
			WithContext("size_bytes", len(data)).
			WithUserMessage("The attachment is too large")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("conversation_id", conversationID); err != nil {
		return nil, apperrors.NewUploadError(err)
	}
	if receiverID != "" {
		if err := writer.WriteField("receiver_id", receiverID); err != nil {
			return nil, apperrors.NewUploadError(err)
		}
	}

	part, err := writer.CreateFormFile("media", filename)
	if err != nil {
		return nil, apperrors.NewUploadError(err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperrors.NewUploadError(err)
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.NewUploadError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return nil, apperrors.NewUploadError(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return nil, apperrors.NewUploadError(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewUploadError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewUploadError(err)
	}

	var decoded uploadResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverMsg := ""
		if json.Unmarshal(raw, &decoded) == nil {
			serverMsg = decoded.Message
		}
		return nil, apperrors.NewServerRejectionError("media upload", resp.StatusCode, serverMsg)
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperrors.NewDecodeError("media upload", err)
	}
	if !decoded.Success || decoded.Data == nil || decoded.Data.URL == "" {
		return nil, apperrors.New(apperrors.ErrCodeUpload, "upload response missing media URL").
			WithUserMessage("Could not upload the attachment")
	}

	if decoded.Data.MimeType == "" {
		decoded.Data.MimeType = MimeTypeForFilename(filename)
	}
	return decoded.Data, nil
}

// MimeTypeForFilename infers a MIME type from the file extension.
func MimeTypeForFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := constants.MimeTypes[ext]; ok {
		return mime
	}
	return constants.DefaultMimeType
}

// KindForMimeType infers the message kind from a MIME type.
func KindForMimeType(mimeType string) models.MessageKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.KindAudio
	default:
		return models.KindFile
	}
}
