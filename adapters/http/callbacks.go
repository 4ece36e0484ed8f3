package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/artpar/awsapigw/app"
	"github.com/artpar/awsapigw/domain/provision"
)

// maxBodyBytes limits callback request bodies.
const maxBodyBytes = 64 << 10

// Lifecycle is the lifecycle controller driven by the callbacks.
type Lifecycle interface {
	Create(ctx context.Context, ep provision.Endpoint, p provision.CreateParams) (provision.Record, error)
	Suspend(ctx context.Context, ep provision.Endpoint, serviceID int64) error
	Unsuspend(ctx context.Context, ep provision.Endpoint, serviceID int64) error
	Terminate(ctx context.Context, ep provision.Endpoint, serviceID int64) error
	Reset(ctx context.Context, ep provision.Endpoint, p provision.CreateParams, active bool) (provision.Record, error)
	Describe(ctx context.Context, ep provision.Endpoint, serviceID int64, opts app.DescribeOptions) (provision.Details, error)
}

// CallbackDefaults fill options a callback leaves out.
type CallbackDefaults struct {
	Endpoint      provision.Endpoint
	KeyNamePrefix string
	UsagePlans    string // raw, as an operator would type it
}

// ConfigOptions are the module settings a billing platform sends with every callback.
type ConfigOptions struct {
	AWSKeyID       string `json:"aws_key_id,omitempty"`
	AWSKeySecret   string `json:"aws_key_secret,omitempty"`
	APINamePrefix  string `json:"api_name_pfx,omitempty" example:"whmcs_"`
	APIRegion      string `json:"api_region,omitempty" example:"us-east-1"`
	UsagePlanIDs   string `json:"usage_plan_ids,omitempty" example:"plan-a,plan-b"`
	APIEndpointURL string `json:"api_endpoint_url,omitempty"`
}

// CallbackRequest is the body of a lifecycle callback.
type CallbackRequest struct {
	Status        string        `json:"status,omitempty" example:"Active"`
	ConfigOptions ConfigOptions `json:"config_options"`
}

// ResultResponse carries "success" or a human-readable error.
type ResultResponse struct {
	Result string `json:"result" example:"success"`
}

// DescribeResponse is the read view of one service's key.
type DescribeResponse struct {
	ServiceID  int64             `json:"service_id" example:"42"`
	Registered bool              `json:"registered"`
	Source     string            `json:"source" example:"live"`
	Stale      bool              `json:"stale"`
	Status     string            `json:"status" example:"Enabled"`
	Fields     []provision.Field `json:"fields"`
}

// CallbackHandler serves the lifecycle callbacks.
type CallbackHandler struct {
	lifecycle Lifecycle
	defaults  func() CallbackDefaults
	location  *time.Location
	logger    zerolog.Logger
}

// CallbackHandlerConfig configures a CallbackHandler.
type CallbackHandlerConfig struct {
	Lifecycle Lifecycle
	Defaults  func() CallbackDefaults // read per request so reloads apply
	Location  *time.Location          // display zone for key timestamps, UTC if nil
	Logger    zerolog.Logger
}

// NewCallbackHandler creates a callback handler.
func NewCallbackHandler(cfg CallbackHandlerConfig) *CallbackHandler {
	h := &CallbackHandler{
		lifecycle: cfg.Lifecycle,
		defaults:  cfg.Defaults,
		location:  cfg.Location,
		logger:    cfg.Logger,
	}
	if h.defaults == nil {
		h.defaults = func() CallbackDefaults { return CallbackDefaults{} }
	}
	if h.location == nil {
		h.location = time.UTC
	}
	return h
}

// RegisterRoutes registers the callback routes.
func (h *CallbackHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Describe)
	r.Post("/{id}/describe", h.DescribeWith)
	r.Post("/{id}/create", h.Create)
	r.Post("/{id}/suspend", h.Suspend)
	r.Post("/{id}/unsuspend", h.Unsuspend)
	r.Post("/{id}/terminate", h.Terminate)
	r.Post("/{id}/reset", h.Reset)
}

// Create provisions a key for a service.
//
//	@Summary		Create API key
//	@Description	Creates the service's API key, attaches usage plans and stores the local record
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			body	body		CallbackRequest	false	"Module parameters"
//	@Success		200		{object}	ResultResponse
//	@Failure		400		{object}	ResultResponse
//	@Failure		401		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/create [post]
func (h *CallbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	ep, params := h.resolve(id, req)
	_, err := h.lifecycle.Create(r.Context(), ep, params)
	writeResult(w, err)
}

// Suspend disables a service's key.
//
//	@Summary		Suspend API key
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			body	body		CallbackRequest	false	"Module parameters"
//	@Success		200		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/suspend [post]
func (h *CallbackHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	ep, _ := h.resolve(id, req)
	writeResult(w, h.lifecycle.Suspend(r.Context(), ep, id))
}

// Unsuspend enables a service's key.
//
//	@Summary		Unsuspend API key
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			body	body		CallbackRequest	false	"Module parameters"
//	@Success		200		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/unsuspend [post]
func (h *CallbackHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	ep, _ := h.resolve(id, req)
	writeResult(w, h.lifecycle.Unsuspend(r.Context(), ep, id))
}

// Terminate deletes a service's key and its local record.
//
//	@Summary		Terminate API key
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			body	body		CallbackRequest	false	"Module parameters"
//	@Success		200		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/terminate [post]
func (h *CallbackHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	ep, _ := h.resolve(id, req)
	writeResult(w, h.lifecycle.Terminate(r.Context(), ep, id))
}

// Reset replaces the key of an active service.
//
//	@Summary		Reset API key
//	@Description	Terminates and re-creates the key. Only allowed when status is Active.
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			body	body		CallbackRequest	true	"Module parameters"
//	@Success		200		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/reset [post]
func (h *CallbackHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	ep, params := h.resolve(id, req)
	active := strings.EqualFold(strings.TrimSpace(req.Status), "active")
	_, err := h.lifecycle.Reset(r.Context(), ep, params, active)
	writeResult(w, err)
}

// Describe returns the admin view of a service's key using the configured credentials.
//
//	@Summary		Describe API key
//	@Description	Returns the live key state, or the local record when the gateway is unreachable
//	@Tags			Lifecycle
//	@Produce		json
//	@Param			id					path		int		true	"Service ID"
//	@Param			local				query		bool	false	"Skip the cache and the gateway"
//	@Param			api_region			query		string	false	"Gateway region"
//	@Param			api_endpoint_url	query		string	false	"Gateway endpoint override"
//	@Success		200					{object}	DescribeResponse
//	@Failure		400					{object}	ResultResponse
//	@Failure		500					{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id} [get]
func (h *CallbackHandler) Describe(w http.ResponseWriter, r *http.Request) {
	id, err := serviceID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ResultResponse{Result: provision.Message(err)})
		return
	}

	q := r.URL.Query()
	req := CallbackRequest{ConfigOptions: ConfigOptions{
		APIRegion:      q.Get("api_region"),
		APIEndpointURL: q.Get("api_endpoint_url"),
	}}
	h.describe(w, r, id, req)
}

// DescribeWith returns the admin view of a service's key using the credentials in the body.
//
//	@Summary		Describe API key with module parameters
//	@Description	Same as GET /v1/services/{id}, with credentials carried like the mutating callbacks
//	@Tags			Lifecycle
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int				true	"Service ID"
//	@Param			local	query		bool			false	"Skip the cache and the gateway"
//	@Param			body	body		CallbackRequest	false	"Module parameters"
//	@Success		200		{object}	DescribeResponse
//	@Failure		400		{object}	ResultResponse
//	@Failure		500		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/v1/services/{id}/describe [post]
func (h *CallbackHandler) DescribeWith(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	h.describe(w, r, id, req)
}

func (h *CallbackHandler) describe(w http.ResponseWriter, r *http.Request, id int64, req CallbackRequest) {
	ep, _ := h.resolve(id, req)
	local, _ := strconv.ParseBool(r.URL.Query().Get("local"))

	d, err := h.lifecycle.Describe(r.Context(), ep, id, app.DescribeOptions{LocalOnly: local})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, provision.ErrInvalidParams) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, ResultResponse{Result: provision.Message(err)})
		return
	}

	writeJSON(w, http.StatusOK, DescribeResponse{
		ServiceID:  id,
		Registered: d.Registered,
		Source:     string(d.Source),
		Stale:      d.Stale,
		Status:     d.Status,
		Fields:     d.Fields(h.location),
	})
}

// parse reads the service id and the optional JSON body.
func (h *CallbackHandler) parse(w http.ResponseWriter, r *http.Request) (int64, CallbackRequest, bool) {
	var req CallbackRequest

	id, err := serviceID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ResultResponse{Result: provision.Message(err)})
		return 0, req, false
	}

	err = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug().Err(err).Int64("service_id", id).Msg("invalid callback body")
		writeJSON(w, http.StatusBadRequest, ResultResponse{
			Result: provision.Message(provision.NewError(provision.ErrInvalidParams, "", id, provision.StepValidate, err)),
		})
		return 0, req, false
	}
	return id, req, true
}

// resolve merges callback options over the configured defaults.
func (h *CallbackHandler) resolve(id int64, req CallbackRequest) (provision.Endpoint, provision.CreateParams) {
	d := h.defaults()
	opts := req.ConfigOptions

	// Credentials replace the defaults as a pair or not at all.
	ep := d.Endpoint
	switch {
	case opts.AWSKeyID != "" && opts.AWSKeySecret != "":
		ep.AccessKeyID = opts.AWSKeyID
		ep.SecretAccessKey = opts.AWSKeySecret
	case opts.AWSKeyID != "" || opts.AWSKeySecret != "":
		h.logger.Debug().Int64("service_id", id).Msg("incomplete credential pair in callback, using configured credentials")
	}
	if opts.APIRegion != "" {
		ep.Region = strings.TrimSpace(opts.APIRegion)
	}
	if opts.APIEndpointURL != "" {
		ep.EndpointURL = strings.TrimSpace(opts.APIEndpointURL)
	}

	prefix := d.KeyNamePrefix
	if opts.APINamePrefix != "" {
		prefix = opts.APINamePrefix
	}
	plans := d.UsagePlans
	if opts.UsagePlanIDs != "" {
		plans = opts.UsagePlanIDs
	}

	return ep, provision.CreateParams{
		ServiceID:     id,
		KeyNamePrefix: prefix,
		Region:        ep.Region,
		UsagePlans:    provision.ParseUsagePlans(plans),
	}
}

func serviceID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, provision.NewError(provision.ErrInvalidParams, "", 0, provision.StepValidate,
			fmt.Errorf("invalid service id %q", raw))
	}
	return id, nil
}

// writeResult answers with the module contract: HTTP 200 and "success" or a message.
func writeResult(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, ResultResponse{Result: provision.Rendered(err).Render()})
}
