package cmd

import "fmt"

// AuthorizationError signals that the operator declined or skipped the
// authorization confirmation.
type AuthorizationError struct {
	Operator string
}

func (e *AuthorizationError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("assessment not authorized by operator %s", e.Operator)
	}
	return "assessment not authorized"
}

// EmptyTargetError signals a range that resolved to zero scannable hosts.
type EmptyTargetError struct {
	Range string
}

func (e *EmptyTargetError) Error() string {
	return fmt.Sprintf("target range %s resolved to no scannable hosts", e.Range)
}
