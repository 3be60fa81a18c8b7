package access

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
)

const (
	RoleOwner      = "owner"
	RoleArbitrator = "arbitrator"

	ObjectSettings = "settings"
	ObjectOracle   = "oracle"
	ObjectDispute  = "dispute"
	ObjectLedger   = "ledger"

	ActionWrite   = "write"
	ActionResolve = "resolve"
	ActionMint    = "mint"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var defaultPolicies = [][]string{
	{RoleOwner, ObjectSettings, ActionWrite},
	{RoleOwner, ObjectOracle, ActionWrite},
	{RoleOwner, ObjectLedger, ActionMint},
	{RoleArbitrator, ObjectDispute, ActionResolve},
}

var Module = fx.Module("access", fx.Provide(New))

// Authorizer is an in-memory RBAC table. Role membership is rebuilt from
// persisted settings at startup; policies are fixed.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}

	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("seed policies: %w", err)
	}

	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Grant(subject, role string) error {
	_, err := a.enforcer.AddRoleForUser(subject, role)
	return err
}

func (a *Authorizer) Revoke(subject, role string) error {
	_, err := a.enforcer.DeleteRoleForUser(subject, role)
	return err
}

func (a *Authorizer) HasRole(subject, role string) (bool, error) {
	return a.enforcer.HasRoleForUser(subject, role)
}

func (a *Authorizer) Members(role string) ([]string, error) {
	return a.enforcer.GetUsersForRole(role)
}

// Allowed reports whether subject may perform action on object.
func (a *Authorizer) Allowed(subject, object, action string) (bool, error) {
	if subject == "" {
		return false, nil
	}
	return a.enforcer.Enforce(subject, object, action)
}
