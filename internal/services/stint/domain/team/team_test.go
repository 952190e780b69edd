package team

import "testing"

func TestUnanimous(t *testing.T) {
	tests := []struct {
		name string
		eras []string
		want string
		ok   bool
	}{
		{name: "empty", eras: nil, want: "", ok: false},
		{name: "single", eras: []string{"era-1"}, want: "era-1", ok: true},
		{name: "agreement", eras: []string{"era-2", "era-2", "era-2"}, want: "era-2", ok: true},
		{name: "laggard", eras: []string{"era-2", "era-1"}, want: "", ok: false},
		{name: "unset member", eras: []string{"", "era-1"}, want: "", ok: false},
		{name: "all unset", eras: []string{"", ""}, want: "", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Unanimous(tc.eras)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("Unanimous(%v) = %q, %v; want %q, %v", tc.eras, got, ok, tc.want, tc.ok)
			}
		})
	}
}
