package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCertError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CertError
		expected string
	}{
		{
			name: "message only",
			err: &CertError{
				Code:    ErrCodeValidation,
				Message: "DOMAIN is required",
			},
			expected: "DOMAIN is required",
		},
		{
			name: "code only",
			err: &CertError{
				Code: ErrCodeRestore,
			},
			expected: "RESTORE_FAILED",
		},
		{
			name: "with domain",
			err: &CertError{
				Code:    ErrCodeIssuance,
				Message: "empty certificate",
				Domain:  "example.com",
			},
			expected: "example.com: empty certificate",
		},
		{
			name: "with underlying error",
			err: &CertError{
				Code:    ErrCodeBackup,
				Message: "copy primary store",
				Err:     fmt.Errorf("no space left on device"),
			},
			expected: "copy primary store: no space left on device",
		},
		{
			name: "with domain and underlying error",
			err: &CertError{
				Code:    ErrCodeInstall,
				Message: "copy fullchain.pem",
				Domain:  "example.com",
				Err:     fmt.Errorf("permission denied"),
			},
			expected: "example.com: copy fullchain.pem: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.err.Error()
			if result != tt.expected {
				t.Errorf("Error() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestCertError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &CertError{
		Code:    ErrCodeConfig,
		Message: "wrapped error",
		Err:     underlying,
	}

	if err.Unwrap() != underlying {
		t.Errorf("Unwrap() did not return underlying error")
	}

	errNoWrap := &CertError{
		Code:    ErrCodeValidation,
		Message: "no underlying",
	}

	if errNoWrap.Unwrap() != nil {
		t.Errorf("Unwrap() should return nil when no underlying error")
	}
}

func TestCertError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      *CertError
		target   error
		expected bool
	}{
		{
			name:     "matches sentinel error",
			err:      &CertError{Code: ErrCodeRestore, Message: "custom message"},
			target:   ErrRestoreFailed,
			expected: true,
		},
		{
			name:     "different code",
			err:      &CertError{Code: ErrCodeIssuance},
			target:   ErrInstallFailed,
			expected: false,
		},
		{
			name:     "non-CertError target",
			err:      &CertError{Code: ErrCodeBackup},
			target:   fmt.Errorf("regular error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errors.Is(tt.err, tt.target) != tt.expected {
				t.Errorf("Is() = %v, want %v", !tt.expected, tt.expected)
			}
		})
	}
}

func TestSnapshotNotFound(t *testing.T) {
	t.Run("latest", func(t *testing.T) {
		err := SnapshotNotFound("")
		if !errors.Is(err, ErrSnapshotNotFound) {
			t.Error("SnapshotNotFound() should match ErrSnapshotNotFound")
		}
		if err.Error() != "no snapshot has been created yet" {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})

	t.Run("explicit id", func(t *testing.T) {
		err := SnapshotNotFound("20260101-120000")
		if err.Error() != "snapshot 20260101-120000 not found" {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}

func TestValidation(t *testing.T) {
	err := Validationf("%s is required", "DOMAIN")

	var certErr *CertError
	if !errors.As(err, &certErr) {
		t.Fatal("Validationf() should return *CertError")
	}

	if certErr.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", certErr.Code, ErrCodeValidation)
	}

	if certErr.Message != "DOMAIN is required" {
		t.Errorf("Message = %v, want %v", certErr.Message, "DOMAIN is required")
	}

	if !errors.Is(err, ErrValidation) {
		t.Error("Validation() should match ErrValidation")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("file not found")
	err := Wrap(ErrCodeConfig, "failed to load config", underlying)

	var certErr *CertError
	if !errors.As(err, &certErr) {
		t.Fatal("Wrap() should return *CertError")
	}

	if certErr.Code != ErrCodeConfig {
		t.Errorf("Code = %v, want %v", certErr.Code, ErrCodeConfig)
	}

	if certErr.Err != underlying {
		t.Error("Wrap() should preserve underlying error")
	}

	if !errors.Is(err, underlying) {
		t.Error("Wrapped error should contain underlying error in chain")
	}
}

func TestWrapDomain(t *testing.T) {
	underlying := fmt.Errorf("exit status 1")
	err := WrapDomain(ErrCodeIssuance, "example.com", "acme.sh failed", underlying)

	var certErr *CertError
	if !errors.As(err, &certErr) {
		t.Fatal("WrapDomain() should return *CertError")
	}

	if certErr.Domain != "example.com" {
		t.Errorf("Domain = %v, want %v", certErr.Domain, "example.com")
	}

	if !errors.Is(err, ErrIssuanceFailed) {
		t.Error("WrapDomain() should match ErrIssuanceFailed")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"plain error", fmt.Errorf("boom"), ErrCodeInternal},
		{"direct", Wrap(ErrCodeRestore, "restore", nil), ErrCodeRestore},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Wrap(ErrCodeBackup, "backup", nil)), ErrCodeBackup},
		{"nil", nil, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []struct {
		name string
		err  *CertError
		code ErrorCode
	}{
		{"ErrValidation", ErrValidation, ErrCodeValidation},
		{"ErrRootRequired", ErrRootRequired, ErrCodePermission},
		{"ErrConfigInvalid", ErrConfigInvalid, ErrCodeConfig},
		{"ErrBackupFailed", ErrBackupFailed, ErrCodeBackup},
		{"ErrIssuanceFailed", ErrIssuanceFailed, ErrCodeIssuance},
		{"ErrInstallFailed", ErrInstallFailed, ErrCodeInstall},
		{"ErrServiceReloadFailed", ErrServiceReloadFailed, ErrCodeServiceReload},
		{"ErrSnapshotNotFound", ErrSnapshotNotFound, ErrCodeSnapshotNotFound},
		{"ErrRestoreFailed", ErrRestoreFailed, ErrCodeRestore},
	}

	for _, tt := range sentinels {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("%s.Code = %v, want %v", tt.name, tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Errorf("%s.Message should not be empty", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	root := fmt.Errorf("exit status 1")
	issuance := Wrap(ErrCodeIssuance, "acme.sh --issue failed", root)
	restore := Wrap(ErrCodeRestore, "rollback failed", fmt.Errorf("rename: busy"))
	joined := Join(issuance, restore)

	if !errors.Is(joined, root) {
		t.Error("Should be able to find root error in chain")
	}
	if !errors.Is(joined, ErrIssuanceFailed) {
		t.Error("Joined error should match ErrIssuanceFailed")
	}
	if !errors.Is(joined, ErrRestoreFailed) {
		t.Error("Joined error should match ErrRestoreFailed")
	}
}
