package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// KeyService manages API keys through a REST control plane.
//
// API Contract:
//
//	POST /keys
//	Request:  {"name": "whmcs__serviceid_42", "enabled": true}
//	Response: {"id": "...", "value": "...", "name": "...", "enabled": true, "created_at": "...", "updated_at": "..."}
//
//	GET /keys/{id}
//	Response: {"id": "...", "value": "...", "name": "...", "description": "...", "enabled": true, ...}
//
//	PATCH /keys/{id}
//	Request:  {"enabled": false}
//	Response: the updated key
//
//	DELETE /keys/{id}
//	Response: 204
//
//	POST /usage-plans/{plan_id}/keys
//	Request:  {"key_id": "..."}
//	Response: 201
//
// A 404 on a key path means the key does not exist.
type KeyService struct {
	client *Client
}

// NewKeyService creates a remote key service.
func NewKeyService(client *Client) *KeyService {
	return &KeyService{client: client}
}

type createKeyRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type updateKeyRequest struct {
	Enabled bool `json:"enabled"`
}

type attachRequest struct {
	KeyID string `json:"key_id"`
}

// CreateKey creates an enabled key.
func (s *KeyService) CreateKey(ctx context.Context, name string) (provision.ExternalKey, error) {
	var key provision.ExternalKey
	if err := s.client.Request(ctx, http.MethodPost, "/keys", createKeyRequest{Name: name, Enabled: true}, &key); err != nil {
		return provision.ExternalKey{}, err
	}
	return key, nil
}

// GetKey retrieves a key including its value.
func (s *KeyService) GetKey(ctx context.Context, id string) (provision.ExternalKey, error) {
	var key provision.ExternalKey
	if err := s.client.Request(ctx, http.MethodGet, keyPath(id), nil, &key); err != nil {
		return provision.ExternalKey{}, mapNotFound(err)
	}
	return key, nil
}

// UpdateKeyEnabled sets the enabled flag.
func (s *KeyService) UpdateKeyEnabled(ctx context.Context, id string, enabled bool) (provision.ExternalKey, error) {
	var key provision.ExternalKey
	if err := s.client.Request(ctx, http.MethodPatch, keyPath(id), updateKeyRequest{Enabled: enabled}, &key); err != nil {
		return provision.ExternalKey{}, mapNotFound(err)
	}
	return key, nil
}

// DeleteKey removes a key.
func (s *KeyService) DeleteKey(ctx context.Context, id string) error {
	return mapNotFound(s.client.Request(ctx, http.MethodDelete, keyPath(id), nil, nil))
}

// AttachUsagePlan associates a key with a usage plan.
func (s *KeyService) AttachUsagePlan(ctx context.Context, keyID, planID string) error {
	path := "/usage-plans/" + url.PathEscape(planID) + "/keys"
	return s.client.Request(ctx, http.MethodPost, path, attachRequest{KeyID: keyID}, nil)
}

func keyPath(id string) string {
	return "/keys/" + url.PathEscape(id)
}

func mapNotFound(err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %w", ports.ErrKeyNotFound, err)
	}
	return err
}

// Ensure interface compliance.
var _ ports.KeyService = (*KeyService)(nil)

// Factory builds a remote KeyService per caller endpoint.
// The endpoint URL selects the control plane; the secret access key is sent
// as bearer token and the access key ID and region as headers.
type Factory struct {
	baseURL    string
	httpClient *http.Client
}

// NewFactory creates a factory. baseURL is used when an endpoint has no URL.
func NewFactory(baseURL string, timeout time.Duration) *Factory {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Factory{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// KeyService returns a client for ep.
func (f *Factory) KeyService(ctx context.Context, ep provision.Endpoint) (ports.KeyService, error) {
	base := ep.EndpointURL
	if base == "" {
		base = f.baseURL
	}
	if base == "" {
		return nil, errors.New("remote key service: endpoint url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("remote key service: invalid endpoint url: %w", err)
	}

	headers := map[string]string{}
	if ep.AccessKeyID != "" {
		headers["X-Access-Key-Id"] = ep.AccessKeyID
	}
	if ep.Region != "" {
		headers["X-Region"] = ep.Region
	}

	return NewKeyService(NewClient(ClientConfig{
		BaseURL:    base,
		APIKey:     ep.SecretAccessKey,
		Headers:    headers,
		HTTPClient: f.httpClient,
	})), nil
}

// Ensure interface compliance.
var _ ports.KeyServiceFactory = (*Factory)(nil)
