package cmd

import (
	"strings"
	"testing"
)

func TestAuthorizationErrorMessage(t *testing.T) {
	err := &AuthorizationError{Operator: "alice"}
	if !strings.Contains(err.Error(), "alice") {
		t.Errorf("error = %q, want operator name included", err.Error())
	}

	anon := &AuthorizationError{}
	if anon.Error() != "assessment not authorized" {
		t.Errorf("error = %q, want generic message", anon.Error())
	}
}

func TestEmptyTargetErrorMessage(t *testing.T) {
	err := &EmptyTargetError{Range: "10.0.0.0/32"}
	if !strings.Contains(err.Error(), "10.0.0.0/32") {
		t.Errorf("error = %q, want range included", err.Error())
	}
}
