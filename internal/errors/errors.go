// Package errors provides standardized error types for the nascert CLI tool.
//
// The errors package defines the failure taxonomy of a certificate renewal
// run so that callers can decide between aborting, rolling back, or asking
// for manual intervention.
//
// # Error Types
//
// CertError is the primary error type, containing:
//   - Code: Categorizes the error (VALIDATION, BACKUP_FAILED, etc.)
//   - Message: Human-readable error description
//   - Domain: The domain name involved (if applicable)
//   - Err: The underlying wrapped error (if any)
//
// # Severity
//
// The codes map onto the renewal lifecycle:
//
//	VALIDATION, PERMISSION, CONFIG   // reported before any mutation
//	BACKUP_FAILED                    // aborts before acquisition, nothing to roll back
//	ISSUANCE_FAILED, INSTALL_FAILED  // trigger the rollback path
//	SERVICE_RELOAD_FAILED            // logged, never blocks rollback completion
//	SNAPSHOT_NOT_FOUND               // revert without a snapshot, no mutation
//	RESTORE_FAILED                   // manual operator intervention required
//
// # Usage
//
//	return errors.Validation("DOMAIN is required")
//	return errors.Wrap(errors.ErrCodeIssuance, "acme.sh --issue failed", err)
//
// # Error Checking
//
// Use errors.Is for sentinel error comparison. Comparison is code based, so
// any error carrying the same code matches the sentinel:
//
//	if errors.Is(err, errors.ErrRestoreFailed) {
//	    // manual intervention
//	}
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors for programmatic handling.
type ErrorCode string

// Error codes for different error categories.
const (
	ErrCodeValidation       ErrorCode = "VALIDATION"            // Input or environment validation failed
	ErrCodePermission       ErrorCode = "PERMISSION"            // Permission denied
	ErrCodeConfig           ErrorCode = "CONFIG"                // Configuration error
	ErrCodeBackup           ErrorCode = "BACKUP_FAILED"         // Snapshot creation failed
	ErrCodeIssuance         ErrorCode = "ISSUANCE_FAILED"       // Certificate acquisition failed
	ErrCodeInstall          ErrorCode = "INSTALL_FAILED"        // Copying the bundle into live stores failed
	ErrCodeServiceReload    ErrorCode = "SERVICE_RELOAD_FAILED" // A dependent service did not reload
	ErrCodeSnapshotNotFound ErrorCode = "SNAPSHOT_NOT_FOUND"    // No snapshot to restore
	ErrCodeRestore          ErrorCode = "RESTORE_FAILED"        // Snapshot restore failed
	ErrCodeInternal         ErrorCode = "INTERNAL"              // Internal/unexpected error
)

// CertError represents a structured error with context about the operation.
type CertError struct {
	Code    ErrorCode // Error category
	Message string    // Human-readable message
	Domain  string    // Domain name (if applicable)
	Err     error     // Underlying error (if any)
}

// Error implements the error interface.
func (e *CertError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Domain != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Domain, msg, e.Err)
	}
	if e.Domain != "" {
		return fmt.Sprintf("%s: %s", e.Domain, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain traversal.
func (e *CertError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error.
// Comparison is based on error code.
func (e *CertError) Is(target error) bool {
	t, ok := target.(*CertError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for common error scenarios.
// Use these with errors.Is() for error checking.
var (
	// ErrValidation indicates the environment or input is not usable.
	ErrValidation = &CertError{Code: ErrCodeValidation, Message: "validation failed"}

	// ErrRootRequired indicates root privileges are required.
	ErrRootRequired = &CertError{Code: ErrCodePermission, Message: "root privileges required"}

	// ErrConfigInvalid indicates the configuration is invalid or corrupt.
	ErrConfigInvalid = &CertError{Code: ErrCodeConfig, Message: "invalid configuration"}

	// ErrBackupFailed indicates a snapshot could not be created.
	ErrBackupFailed = &CertError{Code: ErrCodeBackup, Message: "backup failed"}

	// ErrIssuanceFailed indicates the acquisition tool did not produce a certificate.
	ErrIssuanceFailed = &CertError{Code: ErrCodeIssuance, Message: "certificate issuance failed"}

	// ErrInstallFailed indicates the new bundle could not be copied into place.
	ErrInstallFailed = &CertError{Code: ErrCodeInstall, Message: "certificate install failed"}

	// ErrServiceReloadFailed indicates at least one dependent service failed to reload.
	ErrServiceReloadFailed = &CertError{Code: ErrCodeServiceReload, Message: "service reload failed"}

	// ErrSnapshotNotFound indicates there is no snapshot to restore.
	ErrSnapshotNotFound = &CertError{Code: ErrCodeSnapshotNotFound, Message: "snapshot not found"}

	// ErrRestoreFailed indicates a snapshot restore did not complete.
	ErrRestoreFailed = &CertError{Code: ErrCodeRestore, Message: "restore failed"}
)

// Validation creates a validation error with a custom message.
func Validation(msg string) error {
	return &CertError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return Validation(fmt.Sprintf(format, args...))
}

// Wrap creates an error with the specified code, message, and underlying error.
func Wrap(code ErrorCode, msg string, err error) error {
	return &CertError{
		Code:    code,
		Message: msg,
		Err:     err,
	}
}

// WrapDomain creates an error with domain context and underlying error.
func WrapDomain(code ErrorCode, domain, msg string, err error) error {
	return &CertError{
		Code:    code,
		Message: msg,
		Domain:  domain,
		Err:     err,
	}
}

// SnapshotNotFound creates an error for a snapshot id that cannot be resolved.
func SnapshotNotFound(id string) error {
	msg := "no snapshot has been created yet"
	if id != "" {
		msg = fmt.Sprintf("snapshot %s not found", id)
	}
	return &CertError{
		Code:    ErrCodeSnapshotNotFound,
		Message: msg,
	}
}

// CodeOf returns the code of the first CertError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var certErr *CertError
	if errors.As(err, &certErr) {
		return certErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether any error in err's chain matches target.
// This is a re-export of errors.Is for convenience.
var Is = errors.Is

// As finds the first error in err's chain that matches target.
// This is a re-export of errors.As for convenience.
var As = errors.As

// Join is a re-export of errors.Join for convenience.
var Join = errors.Join

// New is a re-export of errors.New for convenience.
var New = errors.New
