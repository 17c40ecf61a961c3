package toolchain

import (
	"strings"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// Entry is one matrix entry: a channel plus its allow-failure tag. Each entry
// is an independent execution unit; failures in an allow-failure entry are
// recorded but excluded from the aggregate pass/fail gate.
type Entry struct {
	Channel      Channel
	AllowFailure bool
}

// ExpandMatrix builds the set of matrix entries from the declared channel list
// and the allow-failure predicate list.
//
// Every declared channel appears exactly once. An entry's AllowFailure is true
// iff the channel matches one of the predicates: a predicate is either an
// exact channel identifier ("beta", "nightly-2016-07-07") or a family prefix
// ("nightly" matches the whole nightly family).
//
// Returns a config error when the declared list is empty, contains duplicate
// channel identifiers, or declares more than one pinned dated nightly.
func ExpandMatrix(declared []string, allowFailure []string) ([]Entry, error) {
	if len(declared) == 0 {
		return nil, errors.ConfigError("matrix channel list is empty")
	}

	seen := make(map[string]bool, len(declared))
	pinnedCount := 0
	entries := make([]Entry, 0, len(declared))

	for _, raw := range declared {
		ch, err := ParseChannel(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}

		id := ch.String()
		if seen[id] {
			return nil, errors.ConfigError("duplicate channel in matrix").
				WithContext("channel", id)
		}
		seen[id] = true

		if ch.Family == FamilyPinnedNightly {
			pinnedCount++
			if pinnedCount > 1 {
				return nil, errors.ConfigError("at most one pinned dated nightly is allowed").
					WithContext("channel", id)
			}
		}

		entries = append(entries, Entry{
			Channel:      ch,
			AllowFailure: matchesAllowFailure(ch, allowFailure),
		})
	}

	return entries, nil
}

// matchesAllowFailure reports whether the channel matches any allow-failure
// predicate. Family predicates ("nightly") cover pinned nightlies too.
func matchesAllowFailure(ch Channel, predicates []string) bool {
	for _, p := range predicates {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == ch.String() {
			return true
		}
		if p == string(FamilyNightly) && ch.IsNightly() {
			return true
		}
	}
	return false
}
