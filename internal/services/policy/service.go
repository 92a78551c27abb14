package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivankudzin/groupguard/internal/config"
	"github.com/ivankudzin/groupguard/internal/domain/model"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	Get(ctx context.Context, chatID int64) (model.ChatPolicy, bool, error)
	Set(ctx context.Context, chatID int64, policy model.ChatPolicy) error
	Delete(ctx context.Context, chatID int64) error
}

// Service resolves per-chat moderation policy. Absence of a stored policy
// materializes the system defaults; callers never see "no policy".
type Service struct {
	store    Store
	defaults config.ModerationConfig
}

func NewService(store Store, defaults config.ModerationConfig) *Service {
	if defaults.ViolationThreshold < 1 {
		defaults.ViolationThreshold = 3
	}
	if defaults.MuteDuration < time.Second {
		defaults.MuteDuration = 30 * time.Minute
	}

	return &Service{
		store:    store,
		defaults: defaults,
	}
}

func (s *Service) Get(ctx context.Context, chatID int64) (model.ChatPolicy, error) {
	if chatID == 0 {
		return model.ChatPolicy{}, ErrValidation
	}
	if s.store == nil {
		return model.ChatPolicy{}, fmt.Errorf("policy store is nil")
	}

	policy, found, err := s.store.Get(ctx, chatID)
	if err != nil {
		return model.ChatPolicy{}, err
	}
	if !found {
		return s.defaultPolicy(), nil
	}
	return policy, nil
}

func (s *Service) SetLinkFilter(ctx context.Context, chatID int64, enabled bool) error {
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		p.LinkFilterEnabled = enabled
		return nil
	})
}

func (s *Service) SetForwardFilter(ctx context.Context, chatID int64, enabled bool) error {
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		p.ForwardFilterEnabled = enabled
		return nil
	})
}

func (s *Service) SetThreshold(ctx context.Context, chatID int64, threshold int) error {
	if threshold < 1 {
		return ErrValidation
	}
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		p.ViolationThreshold = threshold
		return nil
	})
}

func (s *Service) SetMuteDuration(ctx context.Context, chatID int64, duration time.Duration) error {
	if duration < time.Second {
		return ErrValidation
	}
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		p.MuteDurationSeconds = int(duration / time.Second)
		return nil
	})
}

func (s *Service) AddWhitelistDomain(ctx context.Context, chatID int64, domain string) error {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return err
	}
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		for _, existing := range p.WhitelistedDomains {
			if existing == normalized {
				return nil
			}
		}
		p.WhitelistedDomains = append(p.WhitelistedDomains, normalized)
		return nil
	})
}

func (s *Service) RemoveWhitelistDomain(ctx context.Context, chatID int64, domain string) error {
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		return err
	}
	return s.update(ctx, chatID, func(p *model.ChatPolicy) error {
		kept := p.WhitelistedDomains[:0]
		for _, existing := range p.WhitelistedDomains {
			if existing != normalized {
				kept = append(kept, existing)
			}
		}
		if len(kept) == 0 {
			p.WhitelistedDomains = nil
			return nil
		}
		p.WhitelistedDomains = kept
		return nil
	})
}

// Forget drops a chat's stored policy, used when the bot leaves the chat.
func (s *Service) Forget(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return ErrValidation
	}
	if s.store == nil {
		return fmt.Errorf("policy store is nil")
	}
	return s.store.Delete(ctx, chatID)
}

func (s *Service) update(ctx context.Context, chatID int64, mutate func(*model.ChatPolicy) error) error {
	if chatID == 0 {
		return ErrValidation
	}
	if s.store == nil {
		return fmt.Errorf("policy store is nil")
	}

	policy, err := s.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if err := mutate(&policy); err != nil {
		return err
	}
	return s.store.Set(ctx, chatID, policy)
}

func (s *Service) defaultPolicy() model.ChatPolicy {
	return model.ChatPolicy{
		LinkFilterEnabled:    s.defaults.LinkFilterEnabled,
		ForwardFilterEnabled: s.defaults.ForwardFilterEnabled,
		ViolationThreshold:   s.defaults.ViolationThreshold,
		MuteDurationSeconds:  int(s.defaults.MuteDuration / time.Second),
	}
}

// NormalizeDomain converts user input into the stored whitelist form:
// lowercase hostname, no scheme, no path, no leading www.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "https://")
	if idx := strings.IndexAny(d, "/?#"); idx >= 0 {
		d = d[:idx]
	}
	d = strings.TrimPrefix(d, "www.")
	d = strings.Trim(d, ".")

	if d == "" || !strings.Contains(d, ".") || strings.ContainsAny(d, " \t") {
		return "", ErrValidation
	}
	return d, nil
}
