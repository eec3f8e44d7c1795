package netrange

import (
	"errors"
	"fmt"
	"testing"
)

func TestExpandHostCounts(t *testing.T) {
	tests := []struct {
		cidr string
		want int
	}{
		{"10.0.0.0/30", 2},
		{"10.0.0.0/29", 6},
		{"10.0.0.0/28", 14},
		{"192.168.1.0/24", 254},
		{"10.0.0.0/31", 2},
		{"10.0.0.5/32", 1},
		{"10.0.0.5", 1},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			hosts, err := Expand(tt.cidr)
			if err != nil {
				t.Fatalf("Expand(%q) returned error: %v", tt.cidr, err)
			}
			if len(hosts) != tt.want {
				t.Errorf("Expand(%q) returned %d hosts, want %d", tt.cidr, len(hosts), tt.want)
			}
		})
	}
}

func TestExpandExcludesNetworkAndBroadcast(t *testing.T) {
	hosts, err := Expand("10.0.0.0/29")
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if hosts[0] != "10.0.0.1" {
		t.Errorf("first host = %s, want 10.0.0.1", hosts[0])
	}
	if hosts[len(hosts)-1] != "10.0.0.6" {
		t.Errorf("last host = %s, want 10.0.0.6", hosts[len(hosts)-1])
	}
}

func TestExpandSlash31IncludesBothAddresses(t *testing.T) {
	hosts, err := Expand("10.0.0.0/31")
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	want := []string{"10.0.0.0", "10.0.0.1"}
	for i, h := range want {
		if hosts[i] != h {
			t.Errorf("hosts[%d] = %s, want %s", i, hosts[i], h)
		}
	}
}

func TestExpandMasksHostBits(t *testing.T) {
	hosts, err := Expand("192.168.1.77/30")
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "192.168.1.77" || hosts[1] != "192.168.1.78" {
		t.Errorf("Expand(192.168.1.77/30) = %v, want [192.168.1.77 192.168.1.78]", hosts)
	}
}

func TestExpandInvalidInput(t *testing.T) {
	tests := []string{
		"",
		"not-a-range",
		"10.0.0.0/33",
		"10.0.0/24",
		"2001:db8::/64",
		"10.0.0.0/-1",
	}

	for i, cidr := range tests {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			hosts, err := Expand(cidr)
			if err == nil {
				t.Fatalf("Expand(%q) succeeded, want error", cidr)
			}
			var rangeErr *InvalidRangeError
			if !errors.As(err, &rangeErr) {
				t.Errorf("Expand(%q) error type = %T, want *InvalidRangeError", cidr, err)
			}
			if len(hosts) != 0 {
				t.Errorf("Expand(%q) returned %d hosts with error, want 0", cidr, len(hosts))
			}
		})
	}
}
