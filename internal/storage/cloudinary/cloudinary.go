package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1" // #nosec G505 -- Cloudinary's request signature is defined as SHA-1
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"

	"github.com/utafrali/storefront/internal/storage"
)

const (
	collaborator   = "image storage"
	defaultBaseURL = "https://api.cloudinary.com/v1_1"
)

// Config holds Cloudinary account credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// BaseURL overrides the API root; tests point it at httptest.
	BaseURL string
}

// Storage implements storage.Storage against Cloudinary's signed REST API.
type Storage struct {
	cfg    Config
	client *httpclient.CircuitBreakerClient
	now    func() time.Time
}

// New creates a Cloudinary-backed storage. Calls go through a retrying,
// circuit-broken HTTP client.
func New(cfg Config, logger *slog.Logger) *Storage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	hc := httpclient.New(httpclient.DefaultConfig())
	return &Storage{
		cfg:    cfg,
		client: httpclient.NewCircuitBreakerClient(hc, httpclient.DefaultCircuitBreakerConfig("cloudinary"), logger),
		now:    time.Now,
	}
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

type destroyResponse struct {
	Result string `json:"result"`
}

// Upload streams the file as a signed multipart upload.
func (s *Storage) Upload(ctx context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	// Cloudinary appends the format itself, so the id carries no extension.
	publicID := storage.NewPublicID(&storage.UploadInput{Folder: input.Folder})
	params := s.signedParams(map[string]string{"public_id": publicID})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, params[k]); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	filename := input.Filename
	if filename == "" {
		filename = "upload"
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, input.Data); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("upload"), bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := s.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.PublicID == "" || out.SecureURL == "" {
		return nil, apperrors.Upstream(collaborator, fmt.Errorf("upload response missing public_id or secure_url"))
	}
	return &storage.UploadResult{URL: out.SecureURL, PublicID: out.PublicID}, nil
}

// Delete destroys the asset. An asset that is already gone counts as deleted.
func (s *Storage) Delete(ctx context.Context, publicID string) error {
	form := url.Values{}
	for k, v := range s.signedParams(map[string]string{"public_id": publicID}) {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("destroy"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build destroy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out destroyResponse
	if err := s.do(ctx, req, &out); err != nil {
		return err
	}
	switch out.Result {
	case "ok", "not found":
		return nil
	default:
		return apperrors.Upstream(collaborator, fmt.Errorf("destroy %s: result %q", publicID, out.Result))
	}
}

func (s *Storage) endpoint(action string) string {
	return fmt.Sprintf("%s/%s/image/%s", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.CloudName, action)
}

func (s *Storage) do(ctx context.Context, req *http.Request, out any) error {
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return apperrors.Upstream(collaborator, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, collaborator)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Upstream(collaborator, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// signedParams adds timestamp, api_key and signature to params.
func (s *Storage) signedParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+3)
	for k, v := range params {
		out[k] = v
	}
	out["timestamp"] = strconv.FormatInt(s.now().Unix(), 10)
	out["signature"] = Sign(out, s.cfg.APISecret)
	out["api_key"] = s.cfg.APIKey
	return out
}

// Sign computes Cloudinary's request signature: the SHA-1 hex digest of the
// params sorted by key and joined as k=v pairs with '&', followed by the
// secret. api_key, file and signature itself are never signed.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "api_key" || k == "file" || k == "signature" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret)) // #nosec G401
	return hex.EncodeToString(sum[:])
}
