package domain

import (
	"fmt"
	"strings"
	"time"
)

// ResolvedRoute is the translate-path answer of the upstream content API.
type ResolvedRoute struct {
	Resolved string       `json:"resolved,omitempty"`
	Label    string       `json:"label,omitempty"`
	JSONAPI  RouteJSONAPI `json:"jsonapi"`
	Entity   RouteEntity  `json:"entity"`
}

type RouteJSONAPI struct {
	PathPrefix   string `json:"pathPrefix"`
	Individual   string `json:"individual,omitempty"`
	ResourceName string `json:"resourceName,omitempty"`
}

type RouteEntity struct {
	Type      string `json:"type"`
	Bundle    string `json:"bundle"`
	UUID      string `json:"uuid"`
	Canonical string `json:"canonical,omitempty"`
}

// Validate requires all four endpoint segments to be present.
func (r *ResolvedRoute) Validate() error {
	var missing []string
	if r.JSONAPI.PathPrefix == "" {
		missing = append(missing, "jsonapi.pathPrefix")
	}
	if r.Entity.Type == "" {
		missing = append(missing, "entity.type")
	}
	if r.Entity.Bundle == "" {
		missing = append(missing, "entity.bundle")
	}
	if r.Entity.UUID == "" {
		missing = append(missing, "entity.uuid")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or empty fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Endpoint formats the canonical endpoint, /prefix/type/bundle/uuid.
func (r *ResolvedRoute) Endpoint() string {
	return fmt.Sprintf("/%s/%s/%s/%s",
		r.JSONAPI.PathPrefix, r.Entity.Type, r.Entity.Bundle, r.Entity.UUID)
}

// CachePurgedEvent is published after the whole cache keyspace is flushed.
type CachePurgedEvent struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}
