package address

import "testing"

func TestParseDocument(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		wantPath  string
		wantSlug  string
		wantNS    string
		wantErr   bool
	}{
		{"simple", "/api/auth.md", "/api/auth.md", "auth", "api", false},
		{"legacy prefix kept", "/docs/api/auth.md", "/docs/api/auth.md", "auth", "docs/api", false},
		{"no leading slash", "api/auth.md", "/api/auth.md", "auth", "api", false},
		{"root doc", "/readme.md", "/readme.md", "readme", "root", false},
		{"missing extension", "/api/auth", "", "", "", true},
		{"empty", "   ", "", "", "", true},
		{"dotdot rejected", "/../etc/passwd.md", "", "", "", true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDocument(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDocument(%q) expected error, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDocument(%q) unexpected error: %v", tc.input, err)
			}
			if got.Path != tc.wantPath || got.Slug != tc.wantSlug || got.Namespace != tc.wantNS {
				t.Errorf("ParseDocument(%q) = %+v, want path=%s slug=%s ns=%s", tc.input, got, tc.wantPath, tc.wantSlug, tc.wantNS)
			}
		})
	}
}

func TestParseSection(t *testing.T) {
	t.Parallel()

	sec, err := ParseSection("api/authentication/jwt-tokens", "/api/auth.md")
	if err != nil {
		t.Fatalf("ParseSection unexpected error: %v", err)
	}
	want := "/api/auth.md#api/authentication/jwt-tokens"
	if sec.FullPath != want {
		t.Errorf("FullPath = %q, want %q", sec.FullPath, want)
	}

	// All forms canonicalize to the same full_path.
	forms := []string{"intro", "#intro", "/api/auth.md#intro"}
	var full string
	for i, f := range forms {
		s, err := ParseSection(f, "/api/auth.md")
		if err != nil {
			t.Fatalf("ParseSection(%q) error: %v", f, err)
		}
		if i == 0 {
			full = s.FullPath
		} else if s.FullPath != full {
			t.Errorf("ParseSection(%q).FullPath = %q, want %q", f, s.FullPath, full)
		}
	}
}

func TestParseSectionRequiresContext(t *testing.T) {
	t.Parallel()
	if _, err := ParseSection("intro", ""); err == nil {
		t.Fatal("expected error when context missing for bare slug")
	}
}

func TestParseTaskSlugsBatchLimit(t *testing.T) {
	t.Parallel()
	refs := "a,b,c,d,e,f,g,h,i,j,k"
	if _, err := ParseTaskSlugs(refs, "/coordinator/active.md"); err == nil {
		t.Fatal("expected batch overflow error for 11 slugs")
	}

	ok := "a,b,c,d,e,f,g,h,i,j"
	tasks, err := ParseTaskSlugs(ok, "/coordinator/active.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 10 {
		t.Fatalf("got %d tasks, want 10", len(tasks))
	}
}
