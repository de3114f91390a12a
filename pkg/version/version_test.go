package version

import (
	"strings"
	"testing"
)

func TestGetAndString(t *testing.T) {
	t.Parallel()

	v := Get()
	if v.Version == "" || v.GoVersion == "" || v.Platform == "" {
		t.Fatalf("incomplete info: %+v", v)
	}

	s := v.String()
	for _, part := range []string{"automd", v.Version, v.GitCommit, v.BuildTime, v.GoVersion, v.Platform} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
