package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleAsker    = "asker"
	RoleApprover = "approver"
	// RoleAny satisfies every role check.
	RoleAny = "*"
)

// Identity is the caller behind an API key. Subject is recorded on approval
// decisions.
type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role) || slices.Contains(i.Roles, RoleAny)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type keyEntry struct {
	digest   [sha256.Size]byte
	identity Identity
}

// StaticAPIKeyValidator holds SHA-256 digests of configured keys, never the
// raw key material.
type StaticAPIKeyValidator struct {
	entries []keyEntry
}

// NewStaticAPIKeyValidator parses "key:subject:role|role" entries separated by
// commas. An empty string yields a validator that rejects every key.
func NewStaticAPIKeyValidator(entries string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	for _, raw := range strings.Split(entries, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, identity, err := parseKeyEntry(raw)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256([]byte(key))
		if validator.lookup(digest) != nil {
			return nil, fmt.Errorf("api key for subject %q is configured twice", identity.Subject)
		}
		validator.entries = append(validator.entries, keyEntry{digest: digest, identity: identity})
	}
	return validator, nil
}

func parseKeyEntry(raw string) (string, Identity, error) {
	key, rest, ok := strings.Cut(raw, ":")
	subject, roleList, ok2 := strings.Cut(rest, ":")
	if !ok || !ok2 || strings.Contains(roleList, ":") {
		return "", Identity{}, errors.New("api key entry must be key:subject:role|role")
	}
	key = strings.TrimSpace(key)
	subject = strings.TrimSpace(subject)
	if key == "" || subject == "" {
		return "", Identity{}, fmt.Errorf("api key entry for %q has an empty key or subject", subject)
	}

	var roles []string
	for _, role := range strings.Split(roleList, "|") {
		if role = strings.TrimSpace(role); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("api key for subject %q has no roles", subject)
	}
	slices.Sort(roles)
	return key, Identity{Subject: subject, Roles: roles}, nil
}

func (v *StaticAPIKeyValidator) lookup(digest [sha256.Size]byte) *Identity {
	var found *Identity
	for i := range v.entries {
		if subtle.ConstantTimeCompare(v.entries[i].digest[:], digest[:]) == 1 {
			found = &v.entries[i].identity
		}
	}
	return found
}

// Subjects lists configured subjects in key order.
func (v *StaticAPIKeyValidator) Subjects() []string {
	subjects := make([]string, 0, len(v.entries))
	for _, entry := range v.entries {
		subjects = append(subjects, entry.identity.Subject)
	}
	return subjects
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	if apiKey == "" {
		return Identity{}, false
	}
	identity := v.lookup(sha256.Sum256([]byte(apiKey)))
	if identity == nil {
		return Identity{}, false
	}
	return *identity, true
}
