package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v69/github"

	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/httpkit"
)

// runVersion prints build metadata. With check it also asks GitHub for
// the latest release. gh may be nil to use the public API.
func runVersion(ctx context.Context, w io.Writer, outputFmt string, check bool, gh *gogithub.Client) error {
	info := buildinfo.Info()

	if check {
		if gh == nil {
			gh = gogithub.NewClient(httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)))
		}
		latest, url, err := latestRelease(ctx, gh)
		if err != nil {
			info["latest"] = "unknown"
			info["check_error"] = err.Error()
		} else {
			info["latest"] = latest
			info["release_url"] = url
			info["update_available"] = fmt.Sprint(newerVersion(latest, buildinfo.Version))
		}
	}

	if outputFmt == "json" {
		return writeJSON(w, info)
	}

	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch", "latest", "release_url", "check_error"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	if info["update_available"] == "true" {
		fmt.Fprintf(w, "A newer release is available: %s\n", info["latest"])
	}
	return nil
}

func latestRelease(ctx context.Context, gh *gogithub.Client) (tag, url string, err error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rel, _, err := gh.Repositories.GetLatestRelease(ctx, buildinfo.RepoOwner, buildinfo.RepoName)
	if err != nil {
		return "", "", fmt.Errorf("latest release: %w", err)
	}
	return rel.GetTagName(), rel.GetHTMLURL(), nil
}

// newerVersion reports whether latest is a higher vMAJOR.MINOR.PATCH
// than current. Development builds never report an update.
func newerVersion(latest, current string) bool {
	l, ok := parseSemver(latest)
	if !ok {
		return false
	}
	c, ok := parseSemver(current)
	if !ok {
		return false
	}
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func parseSemver(s string) ([3]int, bool) {
	var v [3]int
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return v, false
	}
	for i, p := range parts {
		if _, err := fmt.Sscanf(p, "%d", &v[i]); err != nil {
			return v, false
		}
	}
	return v, true
}
