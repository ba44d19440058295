package pathutil

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{".", ""},
		{"data/a.csv", "data/a.csv"},
		{"/data/a.csv", "data/a.csv"},
		{"data//sub/../a.csv", "data/a.csv"},
		{"data/dir/", "data/dir"},
		{"./data", "data"},
		{`data\win\file`, "data/win/file"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAreRelated(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"data/a.csv", "data/a.csv", true},
		{"data", "data/a.csv", true},
		{"data/a.csv", "data", true},
		{"data/a", "data/a/b/c.txt", true},
		{"data/a", "data/ab.csv", false},
		{"data/ab.csv", "data/a", false},
		{"data/x", "data/y", false},
		{"", "anything/at/all", true},
		{"out/", "out/file", true},
	}
	for _, tt := range tests {
		if got := AreRelated(tt.a, tt.b); got != tt.want {
			t.Errorf("AreRelated(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	if !Within("data/ds/a.txt", "data/ds") {
		t.Error("Within() = false for file inside directory")
	}
	if !Within("data/ds", "data/ds") {
		t.Error("Within() = false for the directory itself")
	}
	if Within("data/ds2/a.txt", "data/ds") {
		t.Error("Within() = true for sibling directory with shared prefix")
	}
}

func TestSplit(t *testing.T) {
	got := Split("/a/b/c")
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Split() = %v, want [a b c]", got)
	}
	if Split("") != nil {
		t.Errorf("Split(\"\") = %v, want nil", Split(""))
	}
}
