// Package errors builds the portfolio service's client-facing errors and
// maps every error code onto a category and HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/chain-portfolio/internal/types"
)

// ErrorCategory groups error codes by who has to act on them
type ErrorCategory string

const (
	// CategoryUserInput covers bad wallets, chains and request fields (400)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryAuth covers missing or invalid sessions and cron secrets (401)
	CategoryAuth ErrorCategory = "auth"
	// CategoryNotFound covers wallets and alerts the caller does not own (404)
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict covers wallets that are already tracked (409)
	CategoryConflict ErrorCategory = "conflict"
	// CategoryConfiguration covers secrets the server was started without (503)
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryUpstream covers explorer, RPC and price feed failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryDatabase covers Postgres and Redis failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem covers everything else
	CategorySystem ErrorCategory = "system"
)

type codeClass struct {
	category ErrorCategory
	status   int
}

var codeClasses = map[string]codeClass{
	types.ErrCodeInvalidInput:     {CategoryUserInput, http.StatusBadRequest},
	types.ErrCodeInvalidAddress:   {CategoryUserInput, http.StatusBadRequest},
	types.ErrCodeUnsupportedChain: {CategoryUserInput, http.StatusBadRequest},
	types.ErrCodeUnauthorized:     {CategoryAuth, http.StatusUnauthorized},
	types.ErrCodeNotFound:         {CategoryNotFound, http.StatusNotFound},
	types.ErrCodeConflict:         {CategoryConflict, http.StatusConflict},
	types.ErrCodeNotConfigured:    {CategoryConfiguration, http.StatusServiceUnavailable},
	types.ErrCodeUpstream:         {CategoryUpstream, http.StatusInternalServerError},
	types.ErrCodeDatabase:         {CategoryDatabase, http.StatusInternalServerError},
}

// CategorizedError is a service error resolved to its category and status
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Categorize resolves err. Errors that carry no service code are
// reported as INTERNAL_ERROR with err kept as the cause.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}
	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}
	var svcErr *types.ServiceError
	if !stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       types.ErrCodeInternal,
			Message:    "unexpected error",
			Cause:      err,
		}
	}

	class, ok := codeClasses[svcErr.Code]
	if !ok {
		class = codeClass{CategorySystem, http.StatusInternalServerError}
	}
	return &CategorizedError{
		Category:   class.category,
		StatusCode: class.status,
		Code:       svcErr.Code,
		Message:    svcErr.Message,
		Details:    svcErr.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsUserError reports whether err is the caller's fault (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// Wallet and chain input

// NewUnsupportedChainError rejects a chain name no adapter exists for
func NewUnsupportedChainError(chain string) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeUnsupportedChain,
		Message: fmt.Sprintf("unsupported chain: %q", chain),
		Details: map[string]interface{}{"chain": chain},
	}
}

// NewChainDisabledError rejects a known chain this deployment did not enable
func NewChainDisabledError(chain types.ChainID) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeUnsupportedChain,
		Message: fmt.Sprintf("chain %s is not enabled", chain),
		Details: map[string]interface{}{"chain": string(chain)},
	}
}

// NewInvalidAddressError rejects an address that fails the chain's format check
func NewInvalidAddressError(address string, chain types.ChainID) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeInvalidAddress,
		Message: fmt.Sprintf("invalid %s address", chain),
		Details: map[string]interface{}{"address": address, "chain": string(chain)},
	}
}

// NewWalletTrackedError reports a wallet the user already tracks
func NewWalletTrackedError(ref types.WalletRef) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeConflict,
		Message: "wallet is already tracked",
		Details: map[string]interface{}{"address": ref.Address, "chain": string(ref.Chain)},
	}
}

// NewWalletNotFoundError reports a wallet id the user does not own
func NewWalletNotFoundError() *types.ServiceError {
	return &types.ServiceError{Code: types.ErrCodeNotFound, Message: "wallet not found"}
}

// Alerts

// NewAlertNotFoundError reports an alert id the user does not own
func NewAlertNotFoundError() *types.ServiceError {
	return &types.ServiceError{Code: types.ErrCodeNotFound, Message: "alert not found"}
}

// NewNoPriceFeedError rejects an alert on an asset the price resolver
// cannot quote
func NewNoPriceFeedError(asset string) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeInvalidInput,
		Message: "asset has no price feed",
		Details: map[string]interface{}{"asset": asset},
	}
}

// Upstream and storage failures

// NewChainFetchError reports a failed explorer or RPC fetch for a chain
func NewChainFetchError(chain types.ChainID) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeUpstream,
		Message: "failed to fetch portfolio",
		Details: map[string]interface{}{"chain": string(chain)},
	}
}

// NewStorageError reports a failed Postgres or Redis operation
func NewStorageError(message string, cause error) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeDatabase,
		Message: message,
		Details: map[string]interface{}{"cause": cause.Error()},
	}
}

// Access

// NewNotConfiguredError fails a request closed when the secret it needs
// was never configured
func NewNotConfiguredError(what string) *types.ServiceError {
	return &types.ServiceError{
		Code:    types.ErrCodeNotConfigured,
		Message: what + " is not configured",
	}
}

// NewUnauthorizedError rejects a missing or invalid credential
func NewUnauthorizedError(message string) *types.ServiceError {
	return &types.ServiceError{Code: types.ErrCodeUnauthorized, Message: message}
}
