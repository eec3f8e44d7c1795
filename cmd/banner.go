package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const complianceBanner = `============================================================
 SWEEP-CLI  - defensive network exposure assessment
============================================================
 This tool performs TCP connect probing and passive banner
 inspection ONLY. It does not exploit, authenticate to, or
 disrupt target systems.

 Run it exclusively against networks you are explicitly
 authorized to assess. Unauthorized scanning may violate
 law and organizational policy.
============================================================`

// printComplianceBanner writes the usage policy notice.
func printComplianceBanner(out io.Writer, operator, networkRange string) {
	fmt.Fprintln(out, complianceBanner)
	fmt.Fprintf(out, " Operator: %s\n", operator)
	fmt.Fprintf(out, " Target:   %s\n", networkRange)
	fmt.Fprintln(out, strings.Repeat("=", 60))
}

// confirmAuthorization gates scanning behind an explicit "yes" from the
// operator. assumeYes (for unattended runs) records the consent without
// prompting.
func confirmAuthorization(in io.Reader, out io.Writer, assumeYes bool) error {
	if assumeYes {
		fmt.Fprintf(out, "%s Authorization asserted via --assume-yes\n", colorInfo("→"))
		return nil
	}

	fmt.Fprint(out, "Type 'yes' to confirm you are authorized to assess this network: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return &AuthorizationError{Operator: operator}
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer != "yes" && answer != "y" {
		return &AuthorizationError{Operator: operator}
	}
	return nil
}
