package permission

import "testing"

// TestGate covers P7: any IP in a listed CIDR is allowed, any IP outside
// every listed CIDR is denied, and an empty restrict list permits
// everything.
func TestGate(t *testing.T) {
	cases := []struct {
		name     string
		restrict []string
		ip       string
		want     bool
	}{
		{"no restriction", nil, "8.8.8.8", true},
		{"inside cidr", []string{"192.168.1.0/24"}, "192.168.1.42", true},
		{"outside cidr", []string{"192.168.1.0/24"}, "192.168.2.10", false},
		{"scenario S8", []string{"192.168.1.0/24"}, "192.168.2.10", false},
		{"second of several cidrs", []string{"10.0.0.0/8", "192.168.1.0/24"}, "192.168.1.5", true},
		{"malformed cidr skipped, still denies", []string{"not-a-cidr"}, "10.0.0.1", false},
		{"malformed client ip denies", []string{"10.0.0.0/8"}, "not-an-ip", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := Gate{Restrict: tc.restrict}
			if got := g.Allowed(tc.ip); got != tc.want {
				t.Errorf("Allowed(%q) with restrict=%v = %v, want %v", tc.ip, tc.restrict, got, tc.want)
			}
		})
	}
}
