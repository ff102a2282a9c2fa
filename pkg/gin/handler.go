// Package gin exposes the hook setup service over HTTP with gin.
package gin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cpswap/hookcpi"
	"github.com/cpswap/hookcpi/internal/log"
)

const maxBodyBytes = 1 << 16

const base58Pattern = "^[1-9A-HJ-NP-Za-km-z]{32,44}$"

// setupRequestSchema is the JSON schema a setup body must satisfy.
var setupRequestSchema = fmt.Sprintf(`{
  "type": "object",
  "required": ["payer", "mint", "validator"],
  "additionalProperties": false,
  "properties": {
    "payer": {"type": "string", "pattern": %[1]q},
    "registry": {"type": "string", "pattern": %[1]q},
    "mint": {"type": "string", "pattern": %[1]q},
    "tokenProgram": {"type": "string", "pattern": %[1]q},
    "associatedTokenProgram": {"type": "string", "pattern": %[1]q},
    "systemProgram": {"type": "string", "pattern": %[1]q},
    "validator": {"type": "string", "pattern": %[1]q}
  }
}`, base58Pattern)

var schemaLoader = gojsonschema.NewStringLoader(setupRequestSchema)

// HandlerOptions configures the routes.
type HandlerOptions struct {
	BasePath string
	Logger   zerolog.Logger
}

// Options is the type for the options for the Handler.
type Options func(*HandlerOptions)

// WithBasePath mounts the routes under path instead of /v1/hooks.
func WithBasePath(path string) Options {
	return func(options *HandlerOptions) {
		options.BasePath = path
	}
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Options {
	return func(options *HandlerOptions) {
		options.Logger = logger
	}
}

// Register mounts the setup routes on r:
//
//	POST {base}/setup
//	GET  {base}/:mint/address?validator=
//	GET  {base}/:mint/registry?validator=
func Register(r gin.IRouter, service *hookcpi.HookSetupService, opts ...Options) {
	options := &HandlerOptions{
		BasePath: "/v1/hooks",
		Logger:   log.API,
	}
	for _, opt := range opts {
		opt(options)
	}

	h := &handler{service: service, logger: options.Logger}
	group := r.Group(options.BasePath)
	group.POST("/setup", h.setup)
	group.GET("/:mint/address", h.address)
	group.GET("/:mint/registry", h.registry)
}

// NewRouter returns a gin engine serving the setup routes.
func NewRouter(service *hookcpi.HookSetupService, opts ...Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	Register(router, service, opts...)
	return router
}

type handler struct {
	service *hookcpi.HookSetupService
	logger  zerolog.Logger
}

func (h *handler) setup(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		h.abort(c, hookcpi.NewSetupError(hookcpi.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}
	if problems := validateBody(body); len(problems) > 0 {
		h.abort(c, hookcpi.NewSetupError(hookcpi.ErrCodeInvalidRequest, "request body does not match schema", map[string]interface{}{
			"errors": problems,
		}))
		return
	}

	var req hookcpi.SetupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.abort(c, hookcpi.NewSetupError(hookcpi.ErrCodeInvalidRequest, err.Error(), nil))
		return
	}

	result, err := h.service.Setup(c.Request.Context(), req)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) address(c *gin.Context) {
	mint, validator, ok := h.keys(c)
	if !ok {
		return
	}
	derived, err := h.service.DeriveRegistryAddress(mint, validator)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":   derived.Address,
		"bump":      derived.Bump,
		"mint":      mint,
		"validator": validator,
	})
}

func (h *handler) registry(c *gin.Context) {
	mint, validator, ok := h.keys(c)
	if !ok {
		return
	}
	info, err := h.service.Inspect(c.Request.Context(), mint, validator)
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) keys(c *gin.Context) (solana.PublicKey, solana.PublicKey, bool) {
	mint, err := solana.PublicKeyFromBase58(c.Param("mint"))
	if err != nil {
		h.abort(c, hookcpi.NewSetupError(hookcpi.ErrCodeInvalidRequest, "invalid mint: "+err.Error(), nil))
		return solana.PublicKey{}, solana.PublicKey{}, false
	}
	validator, err := solana.PublicKeyFromBase58(c.Query("validator"))
	if err != nil {
		h.abort(c, hookcpi.NewSetupError(hookcpi.ErrCodeInvalidRequest, "invalid validator: "+err.Error(), nil))
		return solana.PublicKey{}, solana.PublicKey{}, false
	}
	return mint, validator, true
}

func (h *handler) abort(c *gin.Context, err error) {
	var setupErr *hookcpi.SetupError
	if !errors.As(err, &setupErr) {
		setupErr = &hookcpi.SetupError{Code: hookcpi.ErrorCode(err), Message: err.Error(), Err: err}
		if setupErr.Code == "" {
			setupErr.Code = hookcpi.ErrCodeInternal
		}
	}
	status := StatusFor(setupErr.Code)
	h.logger.Warn().
		Str("path", c.FullPath()).
		Int("status", status).
		Str("code", setupErr.Code).
		Msg(setupErr.Message)
	c.AbortWithStatusJSON(status, gin.H{"error": setupErr})
}

// StatusFor maps a setup error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case hookcpi.ErrCodeAllocationConflict:
		return http.StatusConflict
	case hookcpi.ErrCodeInsufficientFunding:
		return http.StatusPaymentRequired
	case hookcpi.ErrCodeInvalidRequest, hookcpi.ErrCodeAddressMismatch, hookcpi.ErrCodeLayoutSizeMismatch:
		return http.StatusBadRequest
	case hookcpi.ErrCodeRemoteCallFailure:
		return http.StatusBadGateway
	case hookcpi.ErrCodeAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validateBody(body []byte) []string {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", strings.TrimPrefix(desc.Context().String(), "(root)."), desc.Description()))
	}
	return problems
}
