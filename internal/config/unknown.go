package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each section to its valid keys.
var knownKeys = map[string][]string{
	"synology":   {"base_url", "username", "password", "root_folder_id", "device_name"},
	"visibility": {"mode", "hide_tag", "show_tag", "hide_suffix"},
	"session":    {"ttl", "local_ttl", "lock_ttl", "lock_poll_interval", "lock_poll_attempts"},
	"retry":      {"network_retries", "relogin_retries", "base_backoff", "max_backoff"},
	"cache":      {"folder_scan_ttl", "folder_scan_page_size"},
	"ratelimit":  {"reports", "feedback"},
	"store":      {"redis_url", "redis_addr", "redis_password", "redis_db", "key_prefix"},
	"reports": {
		"database_path", "duplicate_window", "max_per_item",
		"retention", "feedback_max", "feedback_retention",
		"analytics_retention",
	},
	"logging": {"log_level", "log_format"},
	"network": {"timeout", "user_agent"},
}

// knownRuleKeys are the keys of a [ratelimit.<scope>] table.
var knownRuleKeys = []string{"limit", "window"}

// knownSections is the sorted list of section names for Levenshtein
// matching. Sorted for deterministic suggestions on ties.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seenSections := make(map[string]bool)

	for _, key := range md.Undecoded() {
		// An unknown section is reported once, not once per key inside it.
		if _, ok := knownKeys[key[0]]; !ok {
			if seenSections[key[0]] {
				continue
			}

			seenSections[key[0]] = true
		}

		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

// unknownKeyError describes one undecoded key, suggesting the closest valid
// name at the level where it went wrong.
func unknownKeyError(key toml.Key) error {
	full := key.String()

	section := key[0]
	fields, ok := knownKeys[section]

	if !ok {
		kind := "section"
		if len(key) == 1 {
			kind = "key"
		}

		return withSuggestion(fmt.Sprintf("unknown config %s %q", kind, section), section, knownSections)
	}

	if len(key) == 1 {
		return fmt.Errorf("unknown config key %q", full)
	}

	if section == "ratelimit" && len(key) == 3 && contains(fields, key[1]) {
		return withSuggestion(fmt.Sprintf("unknown config key %q", full), key[2], knownRuleKeys)
	}

	return withSuggestion(fmt.Sprintf("unknown config key %q", full), key[1], sortedCopy(fields))
}

func withSuggestion(msg, name string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

func sortedCopy(list []string) []string {
	out := append([]string(nil), list...)
	sort.Strings(out)

	return out
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1
	unknown = strings.ToLower(unknown)

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
