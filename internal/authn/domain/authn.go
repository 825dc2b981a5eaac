// Package domain describes per-request tenant authentication.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/tollwaylabs/tollway/internal/credential/domain"
)

// KeyKind distinguishes the two credential classes a caller may present.
type KeyKind string

const (
	KeySecret      KeyKind = "secret"
	KeyPublishable KeyKind = "publishable"
)

// Request carries the raw auth material of one HTTP request.
type Request struct {
	Authorization string `json:"-"`
	SessionToken  string `json:"-"`
	PlanHeader    string `json:"-"`
	Method        string `json:"method"`
	Path          string `json:"path"`
}

// Auth is the terminal authorized state: who may act, on which project,
// in which mode, and optionally as which end user on which plan.
type Auth struct {
	TenantID       snowflake.ID          `json:"tenant_id"`
	PublishableKey string                `json:"publishable_key"`
	Mode           credentialdomain.Mode `json:"mode"`
	KeyKind        KeyKind               `json:"key_kind"`
	UserID         string                `json:"user_id,omitempty"`
	Plan           string                `json:"plan,omitempty"`
	Scopes         []string              `json:"scopes,omitempty"`
}

type Service interface {
	// Authorize walks a request from unauthenticated to authorized, or
	// rejects it with ErrUnauthenticated / ErrForbidden.
	Authorize(ctx context.Context, req Request) (*Auth, error)
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)
