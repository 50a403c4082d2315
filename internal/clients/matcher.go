package clients

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type MatchMethod string

const (
	MethodNone         MatchMethod = "NONE"
	MethodExactContact MatchMethod = "EXACT_CONTACT"
	MethodDomain       MatchMethod = "DOMAIN"
)

// MatchResult is either a single client with the method that found it, or
// NONE (Client == nil).
type MatchResult struct {
	Client *Client
	Method MatchMethod
}

func (r MatchResult) Matched() bool {
	return r.Client != nil && r.Method != MethodNone
}

type indexedClient struct {
	client   Client
	contacts map[string]struct{}
	domains  map[string]struct{}
}

// Matcher resolves candidate addresses against a directory snapshot.
// Contact matches across all clients take precedence over any domain match;
// within a pass the first client in directory order wins.
type Matcher struct {
	clients []indexedClient
}

func NewMatcher(directory []Client) *Matcher {
	indexed := make([]indexedClient, 0, len(directory))
	for _, c := range directory {
		entry := indexedClient{
			client:   c,
			contacts: make(map[string]struct{}, len(c.Contacts)),
			domains:  make(map[string]struct{}, len(c.Domains)),
		}
		for _, contact := range c.Contacts {
			if normalized := NormalizeAddress(contact); normalized != "" {
				entry.contacts[normalized] = struct{}{}
			}
		}
		for _, domain := range c.Domains {
			if normalized := strings.TrimPrefix(NormalizeAddress(domain), "@"); normalized != "" {
				entry.domains[normalized] = struct{}{}
			}
		}
		indexed = append(indexed, entry)
	}
	return &Matcher{clients: indexed}
}

// Match never fails; malformed addresses simply do not match.
func (m *Matcher) Match(addresses []string) MatchResult {
	normalized := make([]string, 0, len(addresses))
	for _, address := range addresses {
		if value := NormalizeAddress(address); value != "" {
			normalized = append(normalized, value)
		}
	}

	for i := range m.clients {
		for _, address := range normalized {
			if _, ok := m.clients[i].contacts[address]; ok {
				client := m.clients[i].client
				return MatchResult{Client: &client, Method: MethodExactContact}
			}
		}
	}

	for i := range m.clients {
		for _, address := range normalized {
			domain := DomainOf(address)
			if domain == "" {
				continue
			}
			if _, ok := m.clients[i].domains[domain]; ok {
				client := m.clients[i].client
				return MatchResult{Client: &client, Method: MethodDomain}
			}
		}
	}

	return MatchResult{Method: MethodNone}
}

// Clients returns the snapshot in directory order.
func (m *Matcher) Clients() []Client {
	out := make([]Client, 0, len(m.clients))
	for _, entry := range m.clients {
		out = append(out, entry.client)
	}
	return out
}

// ByLabel finds the client owning a base, summaries or agendas label.
func (m *Matcher) ByLabel(label string) (Client, bool) {
	for _, entry := range m.clients {
		l := entry.client.Labels
		if label != "" && (label == l.Base || label == l.Summaries || label == l.Agendas) {
			return entry.client, true
		}
	}
	return Client{}, false
}

func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DomainOf returns the part after the last "@", or "" for a malformed address.
func DomainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return ""
	}
	return address[at+1:]
}

// Resolver pairs a Matcher with the unmatched audit sink.
type Resolver struct {
	matcher *Matcher
	audit   AuditSink
	now     func() time.Time
}

func NewResolver(matcher *Matcher, audit AuditSink) *Resolver {
	return &Resolver{matcher: matcher, audit: audit, now: time.Now}
}

func (r *Resolver) Matcher() *Matcher {
	return r.matcher
}

// Identify matches addresses and writes exactly one audit record when
// nothing matched. The audit error is returned alongside the result so the
// caller can log it without losing the match outcome.
func (r *Resolver) Identify(ctx context.Context, itemType, details string, addresses []string) (MatchResult, error) {
	result := r.matcher.Match(addresses)
	if result.Matched() || r.audit == nil {
		return result, nil
	}
	record := UnmatchedRecord{
		ItemType:          itemType,
		Details:           details,
		ParticipantEmails: append([]string(nil), addresses...),
		CreatedAt:         r.now().UTC(),
	}
	if err := r.audit.RecordUnmatched(ctx, record); err != nil {
		return result, fmt.Errorf("record unmatched %s: %w", itemType, err)
	}
	return result, nil
}
