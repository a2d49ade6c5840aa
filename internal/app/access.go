package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/nchirkov/relay/internal/core"
	"github.com/nchirkov/relay/internal/domain"
)

// Refusal reasons surfaced to clients.
const (
	ReasonBlocked       = "blocked"
	ReasonNotAuthorized = "not authorized"
	ReasonCapacity      = "capacity"
	ReasonChannelGone   = "channel no longer available"
)

// Admission is the outcome of evaluating a user against a policy.
type Admission struct {
	Allow  bool
	Role   domain.Role
	Reason string
}

// EvaluateAdmission applies the policy in fixed order: explicit block
// (non-global-admins) first, then public/listed/global-admin allowance.
// Role on allow: the roster role if listed, admin for global admins,
// staff otherwise.
func EvaluateAdmission(p *domain.ChannelPolicy, uid domain.UserID, globalAdmin bool) Admission {
	m, listed := p.Member(uid)
	if listed && m.Blocked && !globalAdmin {
		return Admission{Reason: ReasonBlocked}
	}
	if !p.Public && !listed && !globalAdmin {
		return Admission{Reason: ReasonNotAuthorized}
	}
	role := domain.RoleStaff
	switch {
	case listed && m.Role.Valid():
		role = m.Role
	case globalAdmin:
		role = domain.RoleAdmin
	}
	return Admission{Allow: true, Role: role}
}

// EvaluateCapacity reports whether one more member fits.
func EvaluateCapacity(p *domain.ChannelPolicy, currentMembers int) bool {
	return p.Rules.MaxUsers == 0 || currentMembers < p.Rules.MaxUsers
}

// Evictor closes a connection for a policy reason and cleans it up.
// Implemented by the hub; faked in tests.
type Evictor interface {
	Evict(c *core.Conn, reason string)
}

// Enforcer re-applies the latest policy snapshot to live connections.
type Enforcer struct {
	Registry *Registry
	Policies core.PolicyStore
	Evictor  Evictor
}

// Reconcile re-runs admission for every connection registered in the
// channel. Failing connections are evicted before role changes are
// applied; capacity overflow evicts most-recent joiners first. A
// vanished policy evicts everyone. Running twice against an unchanged
// policy is a no-op.
func (e *Enforcer) Reconcile(ctx context.Context, ch domain.ChannelID) {
	pol, err := e.Policies.Policy(ctx, ch)
	if err != nil {
		// Keep current members rather than evict on a store hiccup.
		log.Error().Err(err).Str("module", "app.access").Str("channel", string(ch)).Msg("policy fetch failed, reconcile skipped")
		return
	}

	members := e.Registry.Snapshot(ch)
	if pol == nil {
		for _, c := range members {
			e.Evictor.Evict(c, ReasonChannelGone)
		}
		return
	}

	kept := make([]*core.Conn, 0, len(members))
	roles := make([]domain.Role, 0, len(members))
	for _, c := range members {
		adm := EvaluateAdmission(pol, c.UserID(), c.GlobalAdmin())
		if !adm.Allow {
			e.Evictor.Evict(c, adm.Reason)
			continue
		}
		kept = append(kept, c)
		roles = append(roles, adm.Role)
	}

	if max := pol.Rules.MaxUsers; max > 0 && len(kept) > max {
		for _, c := range kept[max:] {
			e.Evictor.Evict(c, ReasonCapacity)
		}
		kept = kept[:max]
		roles = roles[:max]
	}

	for i, c := range kept {
		if c.Role() != roles[i] {
			log.Info().Str("module", "app.access").Str("sid", string(c.SID)).
				Str("from", string(c.Role())).Str("to", string(roles[i])).Msg("role reassigned")
		}
		c.SetRole(roles[i])
	}
}
