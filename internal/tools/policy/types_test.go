package policy

import "testing"

func TestNormalizeToolResolvesAlias(t *testing.T) {
	cases := map[string]string{
		"bash":          "exec",
		"Shell":         "exec",
		" apply-patch ": "edit",
		"apply_patch":   "edit",
		"Read":          "read",
	}
	for input, want := range cases {
		if got := NormalizeTool(input); got != want {
			t.Errorf("NormalizeTool(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizeToolsDropsEmpty(t *testing.T) {
	got := NormalizeTools([]string{"bash", "", "  ", "Read"})
	want := []string{"exec", "read"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
