// Package intent classifies incoming queries and derives the text that is
// actually embedded for retrieval.
package intent

import (
	"regexp"
	"strings"

	"rag-assistant/internal/models"
)

// Intent is the classified purpose of a query.
type Intent string

const (
	LinkRequest   Intent = "link_request"
	MCQ           Intent = "mcq"
	ScrapeIntent  Intent = "scrape_intent"
	Clarification Intent = "clarification"
	FollowUp      Intent = "follow_up"
	EntitySwitch  Intent = "entity_switch"
	Independent   Intent = "independent"
)

// recentUserWindow is how many past user turns count for repeat detection.
const recentUserWindow = 4

var (
	linkPattern = regexp.MustCompile(`\b(give|send|share|show|provide|get|need|want)( me)?( the| a| some| any| your)? (links?|urls?|websites?|sites?|sources?)\b` +
		`|\bwhere (can|do|could|should) i (find|read|get|learn|see)\b` +
		`|\b(links?|urls?|websites?) (for|to|about|on|of)\b` +
		`|^(the )?(links?|urls?|sources?|websites?)$` +
		`|\bany (links?|urls?|websites?|sources?)\b`)

	mcqLinePattern   = regexp.MustCompile(`(?m)^\s*\(?[a-d][\).]\s`)
	mcqInlinePattern = regexp.MustCompile(`\b[a-d]\)\s.+\b[b-d]\)\s`)
	mcqPhrasePattern = regexp.MustCompile(`which of the following|\btrue or false\b|\btrue\s*/\s*false\b`)

	scrapePattern       = regexp.MustCompile(`\b(scrape|scraping|crawl|crawling|fetch)\b|\bsearch (the )?(web|internet|online)\b`)
	relatedSitesPattern = regexp.MustCompile(`\brelated (websites?|sites|links|pages)\b`)

	clarificationPattern = regexp.MustCompile(`\btell me more\b|\belaborate\b|\bwhat do you mean\b|\bexplain (that|this|it|more|further)\b|\bmore details?\b|\bclarify\b|\bexpand on\b`)

	leadingPronounPattern = regexp.MustCompile(`^(it|its|it's|this|that|these|those|they|them|their|he|she|his|her)\b`)
	correctivePattern     = regexp.MustCompile(`\bnot right\b|\bwrong\b|\bincorrect\b|\bnot correct\b|\banother\b|\bother one\b|\bsomething else\b|\binstead\b`)
)

// Input is the precomputed view of a query that rules match against.
type Input struct {
	Raw        string
	Lower      string // lowercased, trimmed, line breaks kept
	Normalized string
	History    []models.ConversationTurn
	recentUser map[string]struct{}
}

// HasHistory reports whether the session has any prior turns.
func (in *Input) HasHistory() bool { return len(in.History) > 0 }

// IsRepeat reports whether the query was asked verbatim (after
// normalization) in one of the last few user turns.
func (in *Input) IsRepeat() bool {
	_, ok := in.recentUser[in.Normalized]
	return ok
}

// NewInput prepares a query and its history for rule evaluation.
func NewInput(query string, history []models.ConversationTurn) *Input {
	in := &Input{
		Raw:        query,
		Lower:      strings.ToLower(strings.TrimSpace(query)),
		Normalized: Normalize(query),
		History:    history,
		recentUser: make(map[string]struct{}),
	}
	for _, msg := range models.LastUserMessages(history, recentUserWindow) {
		in.recentUser[Normalize(msg)] = struct{}{}
	}
	return in
}

// Rule is one predicate+tag pair. Rules are evaluated in order and the first
// match wins.
type Rule struct {
	Name   string
	Intent Intent
	Match  func(in *Input) bool
}

// DefaultRules is the production rule order. Reordering changes behavior for
// short queries after topic changes.
var DefaultRules = []Rule{
	{Name: "link_request", Intent: LinkRequest, Match: isLinkRequest},
	{Name: "mcq", Intent: MCQ, Match: func(in *Input) bool {
		return mcqLinePattern.MatchString(in.Lower) ||
			mcqInlinePattern.MatchString(in.Lower) ||
			mcqPhrasePattern.MatchString(in.Lower)
	}},
	{Name: "scrape_intent", Intent: ScrapeIntent, Match: func(in *Input) bool {
		return scrapePattern.MatchString(in.Normalized) || relatedSitesPattern.MatchString(in.Normalized)
	}},
	{Name: "clarification", Intent: Clarification, Match: func(in *Input) bool {
		return in.HasHistory() && clarificationPattern.MatchString(in.Normalized)
	}},
	// An exact repeat gets a clean embedding instead of being anchored to
	// history, which would feed the previous answer back into retrieval.
	{Name: "repeated_query", Intent: Independent, Match: func(in *Input) bool {
		return in.HasHistory() && in.IsRepeat()
	}},
	{Name: "follow_up", Intent: FollowUp, Match: func(in *Input) bool {
		if !in.HasHistory() {
			return false
		}
		return leadingPronounPattern.MatchString(in.Normalized) ||
			correctivePattern.MatchString(in.Normalized) ||
			IsShortNonQuestion(in.Raw)
	}},
	{Name: "entity_switch", Intent: EntitySwitch, Match: func(in *Input) bool {
		return !in.HasHistory() && IsShortNonQuestion(in.Raw)
	}},
	{Name: "independent", Intent: Independent, Match: func(*Input) bool { return true }},
}

// isLinkRequest defers to scrape_intent for "related websites" phrasing.
func isLinkRequest(in *Input) bool {
	return linkPattern.MatchString(in.Normalized) && !relatedSitesPattern.MatchString(in.Normalized)
}

// IsLinkRequestText reports whether a bare message asks for links.
func IsLinkRequestText(message string) bool {
	return isLinkRequest(NewInput(message, nil))
}

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules []Rule
}

// NewClassifier uses DefaultRules when no rules are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the intent of the first matching rule.
func (c *Classifier) Classify(query string, history []models.ConversationTurn) Intent {
	intent, _ := c.Explain(query, history)
	return intent
}

// Explain returns the intent together with the name of the rule that fired.
func (c *Classifier) Explain(query string, history []models.ConversationTurn) (Intent, string) {
	in := NewInput(query, history)
	for _, r := range c.rules {
		if r.Match(in) {
			return r.Intent, r.Name
		}
	}
	return Independent, "independent"
}

// AllowsScrape reports whether the intent may trigger a web scrape.
func (i Intent) AllowsScrape() bool {
	switch i {
	case LinkRequest, FollowUp, Clarification:
		return false
	default:
		return true
	}
}

// ReplacesCache reports whether an answer under this intent replaces the
// session cache entry rather than merging into it.
func (i Intent) ReplacesCache() bool {
	return i == Independent || i == EntitySwitch
}
