// Package storage re-uploads transient channel file URLs to durable cloud
// storage. Upload failures are non-fatal by contract: callers receive ""
// and keep using the original transient URL.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxUploadBytes int64 = 50 * 1024 * 1024

// Uploader copies a file from a source URL into durable storage and
// returns a public download URL, or "" on any failure. Never errors.
type Uploader interface {
	Upload(ctx context.Context, sourceURL, filename, mimeType string) string
}

// DriveUploader pushes files to a Drive-style multipart upload endpoint
// authenticated with an OAuth2 refresh token.
type DriveUploader struct {
	uploadURL  string
	folderID   string
	logger     *slog.Logger
	httpClient *http.Client
}

// NewDriveUploader builds an uploader whose HTTP client injects OAuth2
// access tokens minted from the given config and refresh token.
func NewDriveUploader(log *slog.Logger, uploadURL, folderID string, oauthCfg *oauth2.Config, refreshToken string) *DriveUploader {
	if log == nil {
		log = slog.Default()
	}
	client := &http.Client{Timeout: 120 * time.Second}
	if oauthCfg != nil && strings.TrimSpace(refreshToken) != "" {
		source := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: refreshToken})
		client = oauth2.NewClient(context.Background(), source)
		client.Timeout = 120 * time.Second
	}
	return &DriveUploader{
		uploadURL:  strings.TrimRight(uploadURL, "/"),
		folderID:   folderID,
		logger:     log.With(slog.String("service", "storage")),
		httpClient: client,
	}
}

// Upload fetches the source URL and re-uploads the bytes. Returns the
// public URL of the stored copy, or "" when anything fails.
func (u *DriveUploader) Upload(ctx context.Context, sourceURL, filename, mimeType string) string {
	if strings.TrimSpace(sourceURL) == "" || u.uploadURL == "" {
		return ""
	}
	data, err := u.fetch(ctx, sourceURL)
	if err != nil {
		u.logger.Warn("fetch source for durable upload failed",
			slog.String("filename", filename), slog.Any("error", err))
		return ""
	}
	publicURL, err := u.push(ctx, data, filename, mimeType)
	if err != nil {
		u.logger.Warn("durable upload failed",
			slog.String("filename", filename), slog.Any("error", err))
		return ""
	}
	return publicURL
}

func (u *DriveUploader) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source fetch status: %d", resp.StatusCode)
	}
	limited := &io.LimitedReader{R: resp.Body, N: maxUploadBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxUploadBytes {
		return nil, fmt.Errorf("source exceeds %d bytes", maxUploadBytes)
	}
	return data, nil
}

func (u *DriveUploader) push(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	meta := map[string]any{"name": filename}
	if u.folderID != "" {
		meta["parents"] = []string{u.folderID}
	}
	metaPart, err := writer.CreatePart(map[string][]string{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", err
	}

	header := map[string][]string{}
	if strings.TrimSpace(mimeType) != "" {
		header["Content-Type"] = []string{mimeType}
	}
	filePart, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := filePart.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.uploadURL+"?uploadType=multipart&fields=id,webContentLink", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed struct {
		ID             string `json:"id"`
		WebContentLink string `json:"webContentLink"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", err
	}
	if strings.TrimSpace(parsed.WebContentLink) != "" {
		return parsed.WebContentLink, nil
	}
	if strings.TrimSpace(parsed.ID) == "" {
		return "", fmt.Errorf("upload response missing file id")
	}
	return "https://drive.google.com/uc?id=" + parsed.ID + "&export=download", nil
}

// Disabled is an Uploader that always declines; used when durable storage
// is not configured.
type Disabled struct{}

// Upload always returns "".
func (Disabled) Upload(context.Context, string, string, string) string {
	return ""
}
