package service

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	authndomain "github.com/tollwaylabs/tollway/internal/authn/domain"
)

//go:embed model.conf
var modelText string

// NewEnforcer builds the endpoint allow-list. Policies are static: the set
// of routes a publishable key may touch is part of the product surface, not
// runtime configuration.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Publishable keys reach the metered surface and the public catalog,
		// nothing else.
		{string(authndomain.KeyPublishable), "/usage", "GET"},
		{string(authndomain.KeyPublishable), "/usage", "POST"},
		{string(authndomain.KeyPublishable), "/catalog", "GET"},

		// Secret credentials have full tenant access.
		{string(authndomain.KeySecret), "/*", ".*"},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
