package gitrepo

import "testing"

func TestIsRepoURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  bool
	}{
		{"https://github.com/user/project", true},
		{"http://github.com/user/project", true},
		{"https://gitlab.com/group/project", true},
		{"https://bitbucket.org/team/project", true},
		{"https://example.com/user/project.git", true},
		{"git@github.com:user/project.git", true},
		{"git@example.com:user/project", true},
		{"/home/user/project", false},
		{"./relative/path", false},
		{"project.zip", false},
		{"notes.git", false},
		{"https://example.com/page", false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := IsRepoURL(tc.input); got != tc.want {
				t.Errorf("IsRepoURL(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}
