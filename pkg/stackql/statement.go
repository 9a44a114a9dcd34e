package stackql

import (
	"regexp"
	"strings"
)

// registryPullPattern matches REGISTRY PULL statements with an
// optional ::vN.N.N version suffix on the provider name.
var registryPullPattern = regexp.MustCompile(`(REGISTRY PULL \w+)(::v[\d.]+)?`)

// NormalizeRegistryPull rewrites "REGISTRY PULL google::v24.06.00251"
// to the server's two-token form "REGISTRY PULL google v24.06.00251".
// Statements without a version suffix pass through unchanged.
func NormalizeRegistryPull(sql string) string {
	m := registryPullPattern.FindStringSubmatch(sql)
	if m == nil || m[2] == "" {
		return sql
	}
	return m[1] + " " + m[2][2:]
}

// noticeErrorPrefixes mark notices that report a failed statement on
// the command path.
var noticeErrorPrefixes = []string{
	"http response status code: 4",
	"http response status code: 5",
	"error:",
	"disparity in fields to insert",
	"cannot find matching operation",
}

// NoticeIndicatesError reports whether a server notice describes a
// statement failure rather than informational output.
func NoticeIndicatesError(notice string) bool {
	for _, prefix := range noticeErrorPrefixes {
		if strings.HasPrefix(notice, prefix) {
			return true
		}
	}
	return false
}
