package prompt

import (
	"net/url"
	"strings"

	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/models"
)

// gateLookback is how many recent user messages the cache gate inspects.
const gateLookback = 3

var topicStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "what": {}, "who": {}, "how": {}, "why": {}, "when": {},
	"where": {}, "which": {}, "is": {}, "are": {}, "was": {}, "tell": {}, "me": {}, "about": {},
	"of": {}, "for": {}, "on": {}, "in": {}, "to": {}, "and": {}, "please": {}, "explain": {},
	"describe": {}, "give": {}, "show": {}, "can": {}, "you": {}, "do": {}, "does": {}, "i": {},
}

// NormalizeLink canonicalizes a URL for deduplication: scheme and host are
// lowercased, the fragment, a trailing slash and utm_* parameters are dropped.
// Unparseable input is returned trimmed.
func NormalizeLink(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// DedupeLinks normalizes links and drops duplicates and blanks, keeping
// first-seen order.
func DedupeLinks(links ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range links {
		for _, l := range list {
			n := NormalizeLink(l)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// TopicToken returns the first significant word of a topic, lowercased.
func TopicToken(topic string) string {
	for _, w := range strings.Fields(strings.ToLower(topic)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 2 {
			continue
		}
		if _, stop := topicStopwords[w]; stop {
			continue
		}
		return w
	}
	return ""
}

// CacheRelevant gates cached links for a link request: the cached topic's
// leading token must appear in the query or one of the last few user messages.
func CacheRelevant(entry *sessioncache.Entry, history []models.ConversationTurn, query string) bool {
	if entry == nil || len(entry.Links) == 0 {
		return false
	}
	token := TopicToken(entry.LastTopic)
	if token == "" {
		return false
	}
	msgs := append(models.LastUserMessages(history, gateLookback), query)
	for _, msg := range msgs {
		if strings.Contains(strings.ToLower(msg), token) {
			return true
		}
	}
	return false
}

// CandidateLinks returns the links a prompt may offer. Link requests also see
// cached links when the cache gate passes.
func CandidateLinks(in Input) []string {
	if in.Intent == intent.LinkRequest && CacheRelevant(in.Cache, in.History, in.Query) {
		return DedupeLinks(in.Cache.Links, in.Links)
	}
	return DedupeLinks(in.Links)
}
