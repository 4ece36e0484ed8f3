// Package awsapigw implements the key service on AWS API Gateway.
package awsapigw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"golang.org/x/time/rate"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
)

// keyTypeAPIKey is the only usage plan key type API Gateway supports.
const keyTypeAPIKey = "API_KEY"

// gatewayAPI is the subset of the API Gateway client used here.
type gatewayAPI interface {
	CreateApiKey(ctx context.Context, params *apigateway.CreateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateApiKeyOutput, error)
	GetApiKey(ctx context.Context, params *apigateway.GetApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.GetApiKeyOutput, error)
	UpdateApiKey(ctx context.Context, params *apigateway.UpdateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.UpdateApiKeyOutput, error)
	DeleteApiKey(ctx context.Context, params *apigateway.DeleteApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.DeleteApiKeyOutput, error)
	CreateUsagePlanKey(ctx context.Context, params *apigateway.CreateUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateUsagePlanKeyOutput, error)
}

// Client manages API keys in one region of one account.
type Client struct {
	api     gatewayAPI
	limiter *rate.Limiter
	timeout time.Duration
}

func newClient(api gatewayAPI, limiter *rate.Limiter, timeout time.Duration) *Client {
	return &Client{api: api, limiter: limiter, timeout: timeout}
}

// CreateKey creates an enabled key with a gateway-generated value.
func (c *Client) CreateKey(ctx context.Context, name string) (provision.ExternalKey, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return provision.ExternalKey{}, err
	}
	defer cancel()

	out, err := c.api.CreateApiKey(ctx, &apigateway.CreateApiKeyInput{
		Name:               aws.String(name),
		Enabled:            true,
		GenerateDistinctId: true,
	})
	if err != nil {
		return provision.ExternalKey{}, fmt.Errorf("create api key: %w", err)
	}
	return provision.ExternalKey{
		ID:          aws.ToString(out.Id),
		Value:       aws.ToString(out.Value),
		Name:        aws.ToString(out.Name),
		Description: aws.ToString(out.Description),
		Enabled:     out.Enabled,
		CreatedAt:   utc(out.CreatedDate),
		UpdatedAt:   utc(out.LastUpdatedDate),
	}, nil
}

// GetKey retrieves a key including its value.
func (c *Client) GetKey(ctx context.Context, id string) (provision.ExternalKey, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return provision.ExternalKey{}, err
	}
	defer cancel()

	out, err := c.api.GetApiKey(ctx, &apigateway.GetApiKeyInput{
		ApiKey:       aws.String(id),
		IncludeValue: aws.Bool(true),
	})
	if err != nil {
		return provision.ExternalKey{}, mapError("get api key", err)
	}
	return provision.ExternalKey{
		ID:          aws.ToString(out.Id),
		Value:       aws.ToString(out.Value),
		Name:        aws.ToString(out.Name),
		Description: aws.ToString(out.Description),
		Enabled:     out.Enabled,
		CreatedAt:   utc(out.CreatedDate),
		UpdatedAt:   utc(out.LastUpdatedDate),
	}, nil
}

// UpdateKeyEnabled replaces the enabled flag and returns the key as stored.
func (c *Client) UpdateKeyEnabled(ctx context.Context, id string, enabled bool) (provision.ExternalKey, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return provision.ExternalKey{}, err
	}
	defer cancel()

	value := "false"
	if enabled {
		value = "true"
	}
	out, err := c.api.UpdateApiKey(ctx, &apigateway.UpdateApiKeyInput{
		ApiKey: aws.String(id),
		PatchOperations: []types.PatchOperation{{
			Op:    types.OpReplace,
			Path:  aws.String("/enabled"),
			Value: aws.String(value),
		}},
	})
	if err != nil {
		return provision.ExternalKey{}, mapError("update api key", err)
	}
	return provision.ExternalKey{
		ID:          aws.ToString(out.Id),
		Name:        aws.ToString(out.Name),
		Description: aws.ToString(out.Description),
		Enabled:     out.Enabled,
		CreatedAt:   utc(out.CreatedDate),
		UpdatedAt:   utc(out.LastUpdatedDate),
	}, nil
}

// DeleteKey removes a key.
func (c *Client) DeleteKey(ctx context.Context, id string) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := c.api.DeleteApiKey(ctx, &apigateway.DeleteApiKeyInput{ApiKey: aws.String(id)}); err != nil {
		return mapError("delete api key", err)
	}
	return nil
}

// AttachUsagePlan adds the key to a usage plan.
func (c *Client) AttachUsagePlan(ctx context.Context, keyID, planID string) error {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = c.api.CreateUsagePlanKey(ctx, &apigateway.CreateUsagePlanKeyInput{
		KeyId:       aws.String(keyID),
		KeyType:     aws.String(keyTypeAPIKey),
		UsagePlanId: aws.String(planID),
	})
	if err != nil {
		return fmt.Errorf("create usage plan key %s: %w", planID, err)
	}
	return nil
}

// begin waits for a request slot and applies the per-call timeout.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func mapError(action string, err error) error {
	var nf *types.NotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%s: %w: %w", action, ports.ErrKeyNotFound, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func utc(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// Ensure interface compliance.
var _ ports.KeyService = (*Client)(nil)

// -----------------------------------------------------------------------------
// Factory
// -----------------------------------------------------------------------------

// Config tunes the clients built by Factory.
type Config struct {
	// RatePerSec caps calls per account and region. Zero disables throttling.
	RatePerSec float64
	Burst      int

	// RetryMaxAttempts is passed to the SDK retryer. Zero keeps the SDK default.
	RetryMaxAttempts int

	// Timeout bounds each call.
	Timeout time.Duration
}

// Factory builds a Client per caller endpoint.
// Clients targeting the same account and region share one limiter.
type Factory struct {
	cfg Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFactory creates a factory.
func NewFactory(cfg Config) *Factory {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Factory{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

// KeyService returns a client for ep.
func (f *Factory) KeyService(ctx context.Context, ep provision.Endpoint) (ports.KeyService, error) {
	if ep.Region == "" {
		return nil, errors.New("aws key service: region is required")
	}
	if ep.AccessKeyID == "" || ep.SecretAccessKey == "" {
		return nil, errors.New("aws key service: access key id and secret are required")
	}

	opts := apigateway.Options{
		Region:      ep.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(ep.AccessKeyID, ep.SecretAccessKey, "")),
	}
	if ep.EndpointURL != "" {
		opts.BaseEndpoint = aws.String(ep.EndpointURL)
	}
	if f.cfg.RetryMaxAttempts > 0 {
		opts.RetryMaxAttempts = f.cfg.RetryMaxAttempts
	}

	return newClient(apigateway.New(opts), f.limiter(ep), f.cfg.Timeout), nil
}

func (f *Factory) limiter(ep provision.Endpoint) *rate.Limiter {
	if f.cfg.RatePerSec <= 0 {
		return nil
	}
	key := ep.AccessKeyID + "/" + ep.Region

	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.RatePerSec), f.cfg.Burst)
		f.limiters[key] = l
	}
	return l
}

// Ensure interface compliance.
var _ ports.KeyServiceFactory = (*Factory)(nil)
