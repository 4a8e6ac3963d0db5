package catalog

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"Reports", "/Reports"},
		{"/Reports/", "/Reports"},
		{"Reports//Sales", "/Reports/Sales"},
		{`Reports\Data Sources`, "/Reports/Data Sources"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		parent string
		names  []string
		want   string
	}{
		{"/", []string{"A"}, "/A"},
		{"", []string{"A", "B"}, "/A/B"},
		{"/Root", []string{"Models/"}, "/Root/Models"},
		{"/Root", []string{"Sub/Dir", "X"}, "/Root/Sub/Dir/X"},
		{"/", nil, "/"},
	}
	for _, tt := range tests {
		if got := Join(tt.parent, tt.names...); got != tt.want {
			t.Errorf("Join(%q, %v) = %q, want %q", tt.parent, tt.names, got, tt.want)
		}
	}
}

func TestSegmentsParent(t *testing.T) {
	segs := Segments("/A/B/C")
	if len(segs) != 3 || segs[0] != "A" || segs[2] != "C" {
		t.Fatalf("Segments = %v", segs)
	}
	if got := Parent("/A/B/C"); got != "/A/B" {
		t.Errorf("Parent = %q", got)
	}
	if got := Parent("/A"); got != "/" {
		t.Errorf("Parent(/A) = %q", got)
	}
	if !IsRoot("") || !IsRoot("/") || IsRoot("/A") {
		t.Error("IsRoot mismatch")
	}
}
