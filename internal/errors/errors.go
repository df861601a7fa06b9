package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/systmms/secretxfer/pkg/secretstore"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreError enhances a store failure with a suggestion for the store type.
func StoreError(storeType, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", storeType, operation),
		Details:    err.Error(),
		Suggestion: getStoreSuggestion(storeType, err),
		Err:        err,
	}
}

// getStoreSuggestion returns helpful suggestions based on store type and error
func getStoreSuggestion(storeType string, err error) string {
	status := secretstore.StatusFrom(err)
	errStr := err.Error()

	switch storeType {
	case "azure.keyvault":
		switch status {
		case http.StatusUnauthorized:
			return "Check authentication: verify AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET, or the managed identity"
		case http.StatusForbidden:
			return "Check Key Vault access policies or RBAC: 'Get' on the source and 'Set' on the destination are required"
		case http.StatusNotFound:
			return "Verify the secret name exists in the Key Vault. Secret names are case-sensitive"
		case http.StatusTooManyRequests:
			return "Key Vault throttled the request. Wait a moment or raise retry.max_attempts"
		}
		if strings.Contains(errStr, "no such host") {
			return "Check the vault URL format: https://<vault-name>.vault.azure.net/"
		}

	case "aws.secretsmanager", "aws.ssm":
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "Check IAM permissions for the secret and the configured AWS profile or role_arn"
		case http.StatusNotFound:
			return "Verify the secret name and region"
		case http.StatusTooManyRequests:
			return "AWS rate limit exceeded. Wait a moment and try again"
		}
		if strings.Contains(errStr, "credentials") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}

	case "gcp.secretmanager":
		switch status {
		case http.StatusUnauthorized:
			return "Run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS"
		case http.StatusForbidden:
			return "Grant roles/secretmanager.secretAccessor (source) or roles/secretmanager.secretVersionAdder (destination)"
		case http.StatusNotFound:
			return "Verify the project_id and secret name"
		}

	case "vault":
		switch status {
		case http.StatusForbidden:
			return "Check the Vault token policy grants read on the source path and create/update on the destination path"
		case http.StatusNotFound:
			return "Verify the KV v2 mount and secret path"
		case http.StatusServiceUnavailable:
			return "Vault may be sealed. Run 'vault status'"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and store configuration"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var userErr UserError
	if errors.As(err, &userErr) {
		return err
	}
	var cfgErr ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
