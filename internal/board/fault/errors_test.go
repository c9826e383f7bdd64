package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		silent    bool
	}{
		{"storage", Storage("read layout", errors.New("disk full")), false, true},
		{"duplicate", ErrDuplicateID, false, true},
		{"dangling", fmt.Errorf("edge e1: %w", ErrDanglingEdge), false, true},
		{"settings", SettingsSync(errors.New("503")), true, false},
		{"fetch", ExternalFetch("fetch cards", errors.New("timeout")), true, false},
		{"save failed", ErrSaveFailed, false, false},
		{"plain", errors.New("other"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsSilent(tt.err); got != tt.silent {
				t.Errorf("IsSilent() = %v, want %v", got, tt.silent)
			}
		})
	}
}

func TestSpecificErrorsWrapClass(t *testing.T) {
	if !errors.Is(ErrDuplicateID, ErrGraphIntegrity) {
		t.Error("ErrDuplicateID should wrap ErrGraphIntegrity")
	}
	if !errors.Is(ErrDanglingEdge, ErrGraphIntegrity) {
		t.Error("ErrDanglingEdge should wrap ErrGraphIntegrity")
	}
	if !errors.Is(ErrSaveFailed, ErrStorage) {
		t.Error("ErrSaveFailed should wrap ErrStorage")
	}
}
