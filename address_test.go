package herd

import "testing"

func TestParseAddress(t *testing.T) {
	cases := []struct {
		addr string
		want Address
	}{
		{"mason", Address{Agent: "mason"}},
		{"mason@avalon", Address{Agent: "mason", Team: "avalon"}},
		{"mason.inst-1@avalon", Address{Agent: "mason", Instance: "inst-1", Team: "avalon"}},
		{"@anyone", Address{Agent: "@anyone"}},
		{"@anyone@avalon", Address{Agent: "@anyone", Team: "avalon"}},
		{"@everyone", Address{Agent: "@everyone"}},
		{"@everyone@avalon", Address{Agent: "@everyone", Team: "avalon"}},
	}

	for _, tt := range cases {
		t.Run(tt.addr, func(t *testing.T) {
			got := ParseAddress(tt.addr)
			if got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestParseAddressRenderRoundTrip(t *testing.T) {
	canonical := []string{
		"mason",
		"mason@avalon",
		"mason.inst-1@avalon",
		"@anyone",
		"@anyone@avalon",
		"@everyone",
		"@everyone@avalon",
	}

	for _, addr := range canonical {
		t.Run(addr, func(t *testing.T) {
			if got := ParseAddress(addr).Render(); got != addr {
				t.Errorf("ParseAddress(%q).Render() = %q, want %q", addr, got, addr)
			}
		})
	}
}

func TestParseAddressPermissive(t *testing.T) {
	// Unrecognized shapes still parse, as a bare agent with no team.
	got := ParseAddress("")
	want := Address{Agent: ""}
	if got != want {
		t.Errorf("ParseAddress(\"\") = %+v, want %+v", got, want)
	}
}
