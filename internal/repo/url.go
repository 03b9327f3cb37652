package repo

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/diffsight/diffsight-go/internal/errors"
)

var (
	httpsRepoRegex = regexp.MustCompile(`^https://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/?$`)
	shorthandRegex = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)
	prURLRegex     = regexp.MustCompile(`^https://github\.com/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)/pull/(\d+)/?$`)
)

// ParseRepoURL extracts owner and name from a repository reference.
// Accepted forms: https://github.com/<owner>/<repo> (with or without .git)
// and the <owner>/<repo> shorthand. Anything else is rejected before any I/O.
func ParseRepoURL(rawURL string) (owner, name string, err error) {
	rawURL = strings.TrimSpace(rawURL)

	if matches := httpsRepoRegex.FindStringSubmatch(rawURL); len(matches) == 3 {
		return matches[1], matches[2], nil
	}
	if matches := shorthandRegex.FindStringSubmatch(rawURL); len(matches) == 3 {
		return matches[1], matches[2], nil
	}

	return "", "", errors.InputErrorf("unrecognized repository URL: %s", rawURL)
}

// ParsePRURL extracts owner, name, and PR number from a pull request URL of
// the form https://github.com/<owner>/<repo>/pull/<n>.
func ParsePRURL(rawURL string) (owner, name string, prNumber int, err error) {
	rawURL = strings.TrimSpace(rawURL)

	matches := prURLRegex.FindStringSubmatch(rawURL)
	if len(matches) != 4 {
		return "", "", 0, errors.InputErrorf("unrecognized pull request URL: %s", rawURL)
	}

	prNumber, convErr := strconv.Atoi(matches[3])
	if convErr != nil || prNumber <= 0 {
		return "", "", 0, errors.InputErrorf("invalid pull request number in URL: %s", rawURL)
	}
	return matches[1], matches[2], prNumber, nil
}

// CloneURL renders the canonical https clone URL for an owner/name pair
func CloneURL(owner, name string) string {
	return "https://github.com/" + owner + "/" + name + ".git"
}
