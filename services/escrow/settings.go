package escrow

import (
	"context"
	"time"

	"crowdfund-escrow/pkg/access"
	"crowdfund-escrow/pkg/config"
	"crowdfund-escrow/pkg/db/option"

	"go.uber.org/zap"
)

// EnsureSettings seeds the settings row from configuration on first start
// and loads role membership into the authorizer.
func (s *Service) EnsureSettings(ctx context.Context, cfg *config.Config) error {
	var (
		st     *Settings
		arbs   []*Arbitrator
		seeded bool
	)
	err := s.exec(ctx, "ensure_settings", func(ctx context.Context, now time.Time) error {
		current, err := s.settings.FindOne(ctx, &Settings{ID: settingsRowID})
		if err != nil {
			return err
		}
		if current == nil {
			current = &Settings{
				ID:          settingsRowID,
				Owner:       cfg.Escrow.Owner,
				Treasury:    cfg.Escrow.Treasury,
				RewardPoolA: cfg.Escrow.RewardPoolA,
				RewardPoolB: cfg.Escrow.RewardPoolB,
				UpdatedAt:   now,
			}
			if err := s.settings.Create(ctx, current); err != nil {
				return err
			}
			for _, account := range cfg.Escrow.Arbitrators {
				if account == "" {
					continue
				}
				if err := s.arbitrators.Save(ctx, &Arbitrator{Account: account, AddedBy: current.Owner, CreatedAt: now}); err != nil {
					return err
				}
			}
			seeded = true
		}

		st = current
		arbs, err = s.arbitrators.Find(ctx, &Arbitrator{})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.authz.Grant(st.Owner, access.RoleOwner); err != nil {
		return err
	}
	for _, a := range arbs {
		if err := s.authz.Grant(a.Account, access.RoleArbitrator); err != nil {
			return err
		}
	}

	zap.L().Info("escrow settings loaded",
		zap.Bool("seeded", seeded),
		zap.String("owner", st.Owner),
		zap.Int("arbitrators", len(arbs)),
	)
	return nil
}

// ownerSettings loads settings for update after checking caller holds the
// owner role.
func (s *Service) ownerSettings(ctx context.Context, caller string) (*Settings, error) {
	ok, err := s.authz.Allowed(caller, access.ObjectSettings, access.ActionWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return s.loadSettings(ctx, true)
}

func (s *Service) settingsEvent(ctx context.Context, eventType, actor, subject, second string) error {
	return s.emit(ctx, "", eventType, settingsPayload{Actor: actor, Subject: subject, Second: second})
}

// ProposeOwner starts a two-step ownership transfer.
func (s *Service) ProposeOwner(ctx context.Context, caller, newOwner string) (*Settings, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if newOwner == "" {
		return nil, ErrInvalidAddress
	}

	var out *Settings
	err := s.exec(ctx, "propose_owner", func(ctx context.Context, now time.Time) error {
		st, err := s.ownerSettings(ctx, caller)
		if err != nil {
			return err
		}
		st.PendingOwner = newOwner
		st.UpdatedAt = now
		if err := s.settings.Save(ctx, st); err != nil {
			return err
		}
		out = st
		return s.settingsEvent(ctx, EventOwnershipProposed, caller, newOwner, "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptOwnership completes the transfer. Only the proposed owner may call
// it; the previous owner loses the role on commit.
func (s *Service) AcceptOwnership(ctx context.Context, caller string) (*Settings, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	var out *Settings
	err := s.exec(ctx, "accept_ownership", func(ctx context.Context, now time.Time) error {
		st, err := s.loadSettings(ctx, true)
		if err != nil {
			return err
		}
		if st.PendingOwner == "" {
			return ErrPendingOwnerNotSet
		}
		if st.PendingOwner != caller {
			return ErrNotPendingOwner
		}

		previous := st.Owner
		st.Owner = caller
		st.PendingOwner = ""
		st.UpdatedAt = now
		if err := s.settings.Save(ctx, st); err != nil {
			return err
		}

		cs := currentCall(ctx)
		cs.afterCommit = append(cs.afterCommit, func() {
			if err := s.authz.Revoke(previous, access.RoleOwner); err != nil {
				zap.L().Error("failed to revoke owner role", zap.String("account", previous), zap.Error(err))
			}
			if err := s.authz.Grant(caller, access.RoleOwner); err != nil {
				zap.L().Error("failed to grant owner role", zap.String("account", caller), zap.Error(err))
			}
		})

		out = st
		return s.settingsEvent(ctx, EventOwnershipTransferred, caller, previous, "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) SetTreasury(ctx context.Context, caller, treasury string) (*Settings, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if treasury == "" || treasury == s.escrowAccount {
		return nil, ErrInvalidAddress
	}

	var out *Settings
	err := s.exec(ctx, "set_treasury", func(ctx context.Context, now time.Time) error {
		st, err := s.ownerSettings(ctx, caller)
		if err != nil {
			return err
		}
		st.Treasury = treasury
		st.UpdatedAt = now
		if err := s.settings.Save(ctx, st); err != nil {
			return err
		}
		out = st
		return s.settingsEvent(ctx, EventTreasuryUpdated, caller, treasury, "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetRewardPools sets both pool addresses. An empty address routes that
// pool's share to the treasury.
func (s *Service) SetRewardPools(ctx context.Context, caller, poolA, poolB string) (*Settings, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if poolA == s.escrowAccount || poolB == s.escrowAccount {
		return nil, ErrInvalidAddress
	}

	var out *Settings
	err := s.exec(ctx, "set_reward_pools", func(ctx context.Context, now time.Time) error {
		st, err := s.ownerSettings(ctx, caller)
		if err != nil {
			return err
		}
		st.RewardPoolA = poolA
		st.RewardPoolB = poolB
		st.UpdatedAt = now
		if err := s.settings.Save(ctx, st); err != nil {
			return err
		}
		out = st
		return s.settingsEvent(ctx, EventRewardPoolsUpdated, caller, poolA, poolB)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) AddArbitrator(ctx context.Context, caller, account string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if account == "" {
		return ErrInvalidAddress
	}

	return s.exec(ctx, "add_arbitrator", func(ctx context.Context, now time.Time) error {
		if _, err := s.ownerSettings(ctx, caller); err != nil {
			return err
		}
		if err := s.arbitrators.Save(ctx, &Arbitrator{Account: account, AddedBy: caller, CreatedAt: now}); err != nil {
			return err
		}

		cs := currentCall(ctx)
		cs.afterCommit = append(cs.afterCommit, func() {
			if err := s.authz.Grant(account, access.RoleArbitrator); err != nil {
				zap.L().Error("failed to grant arbitrator role", zap.String("account", account), zap.Error(err))
			}
		})
		return s.settingsEvent(ctx, EventArbitratorAdded, caller, account, "")
	})
}

func (s *Service) RemoveArbitrator(ctx context.Context, caller, account string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if account == "" {
		return ErrInvalidAddress
	}

	return s.exec(ctx, "remove_arbitrator", func(ctx context.Context, now time.Time) error {
		if _, err := s.ownerSettings(ctx, caller); err != nil {
			return err
		}
		if _, err := s.arbitrators.Delete(ctx, &Arbitrator{Account: account}); err != nil {
			return err
		}

		cs := currentCall(ctx)
		cs.afterCommit = append(cs.afterCommit, func() {
			if err := s.authz.Revoke(account, access.RoleArbitrator); err != nil {
				zap.L().Error("failed to revoke arbitrator role", zap.String("account", account), zap.Error(err))
			}
		})
		return s.settingsEvent(ctx, EventArbitratorRemoved, caller, account, "")
	})
}

type SettingsView struct {
	*Settings
	Arbitrators []string `json:"arbitrators"`
}

func (s *Service) GetSettings(ctx context.Context) (*SettingsView, error) {
	st, err := s.loadSettings(ctx, false)
	if err != nil {
		return nil, err
	}
	arbs, err := s.arbitrators.Find(ctx, &Arbitrator{}, option.WithSortBy(option.QuerySortBy{
		SortBy: "account",
		Allow:  map[string]bool{"account": true},
	}))
	if err != nil {
		return nil, err
	}

	view := &SettingsView{Settings: st, Arbitrators: make([]string, 0, len(arbs))}
	for _, a := range arbs {
		view.Arbitrators = append(view.Arbitrators, a.Account)
	}
	return view, nil
}
