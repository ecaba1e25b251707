// Package topicutils validates topic/service names and resolves
// namespace-relative names to their fully scoped form, grounded on
// original_source/src/TopicUtils.cc.
package topicutils

import (
	"regexp"
	"strings"
)

// invalidChars matches the characters a namespace may not contain: '@',
// ':' and whitespace.
var invalidChars = regexp.MustCompile(`[@:\s]`)

// validTopic anchors a topic/service name to alphanumeric-and-underscore
// segments separated by single slashes, with an optional leading slash:
// "/foo/bar", "foo", "foo/bar_2" are valid; "", "//", "foo//bar", and
// anything containing '@', ':', or whitespace are not.
var validTopic = regexp.MustCompile(`^/?([A-Za-z0-9_]+/?)+$`)

// IsValidTopic reports whether name is a syntactically valid topic or
// service name. The "~" (private) and "~/" (relative) namespace-escape
// prefixes are handled at the façade layer (see GetScopedName), so they
// are stripped here before the remainder is checked against the topic
// grammar.
func IsValidTopic(name string) bool {
	if name == "" {
		return false
	}
	if name == "~" {
		return true
	}
	if strings.HasPrefix(name, "~/") {
		name = strings.TrimPrefix(name, "~/")
		if name == "" {
			return false
		}
	}
	return validTopic.MatchString(name)
}

// IsValidNamespace reports whether ns is usable as a partition namespace:
// either empty (root) or free of '@', ':' and whitespace. It does not
// apply the full topic grammar of IsValidTopic.
func IsValidNamespace(ns string) bool {
	if ns == "" {
		return true
	}
	return !invalidChars.MatchString(ns)
}

// GetScopedName resolves topic against namespace ns and partition
// partition, mirroring TopicUtils::GetScopedName's handling of the "~"
// (private) and "~/" (relative) prefixes:
//
//   - a name starting with "~/" is rewritten relative to ns
//   - a name that is exactly "~" is rewritten to ns itself
//   - any other name is used as-is
//
// When partition is non-empty the result is prefixed with "/partition",
// so two nodes in different IGN_PARTITION values never see each other's
// topics even if the unscoped names collide. An empty partition leaves
// the name unprefixed.
func GetScopedName(topic, ns, partition string) string {
	name := topic
	switch {
	case name == "~":
		name = ns
	case strings.HasPrefix(name, "~/"):
		rel := strings.TrimPrefix(name, "~/")
		name = joinNamespace(ns, rel)
	}

	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}

	partition = strings.Trim(partition, "/")
	if partition == "" {
		return name
	}
	return "/" + partition + name
}

func joinNamespace(ns, rel string) string {
	ns = strings.TrimSuffix(ns, "/")
	if ns == "" {
		return "/" + rel
	}
	return ns + "/" + rel
}
