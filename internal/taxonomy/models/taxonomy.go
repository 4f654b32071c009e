package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "prismid/pkg/domain-errors"
)

// Kind distinguishes the two organizational taxonomies personnel records
// reference.
type Kind string

const (
	KindDomain   Kind = "DOMAIN"
	KindDivision Kind = "DIVISION"
)

func (k Kind) Valid() bool {
	return k == KindDomain || k == KindDivision
}

// ParseKind accepts both singular and plural spellings so URL path segments
// like "domains" parse directly.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DOMAIN", "DOMAINS":
		return KindDomain, nil
	case "DIVISION", "DIVISIONS":
		return KindDivision, nil
	default:
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown taxonomy kind %q", s)
	}
}

// Entry is one taxonomy value. Names are unique per kind.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewEntry(id uuid.UUID, kind Kind, name string, now time.Time) (*Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "taxonomy name is required")
	}
	if !kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown taxonomy kind %q", kind)
	}
	return &Entry{
		ID:        id,
		Kind:      kind,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
