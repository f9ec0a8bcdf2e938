package version

import "testing"

func TestParse(t *testing.T) {
	v, err := Parse("1.14.0\x00")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := v.String(); got != "1.14.0" {
		t.Errorf("String() = %q, want %q", got, "1.14.0")
	}
	if _, err := Parse("not-a-version"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		current, since string
		want, ok       bool
	}{
		{"1.14.0", "1.11.0", true, true},
		{"1.11.0", "1.11.0", true, true},
		{"1.10.0", "1.11.0", false, true},
		{"1.9.0", "1.11.0", false, true},
		{"garbage", "1.11.0", false, false},
		{"1.14.0", "", false, false},
	}
	for _, tt := range tests {
		got, ok := AtLeast(tt.current, tt.since)
		if got != tt.want || ok != tt.ok {
			t.Errorf("AtLeast(%q, %q) = %v, %v, want %v, %v", tt.current, tt.since, got, ok, tt.want, tt.ok)
		}
	}
}
