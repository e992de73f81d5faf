package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"
)

const modelText = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.dom, p.dom) && r.obj == p.obj && r.act == p.act
`

// Service evaluates field-group requests against a casbin enforcer.
type Service struct {
	mode     Mode
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
	mu       sync.RWMutex
}

// NewService builds the enforcer and loads cfg.Policy into it.
func NewService(cfg Config) (*Service, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	s := &Service{mode: sanitizeMode(cfg.Policy.Mode), enforcer: enf, logger: logger}
	if err := s.load(cfg.Policy); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(p Policy) error {
	for _, r := range p.Roles {
		if _, err := s.enforcer.AddGroupingPolicy(SubjectForActor(r.Actor), SubjectForRole(r.Role)); err != nil {
			return fmt.Errorf("authz: add role binding: %w", err)
		}
	}
	for _, g := range p.Grants {
		dom := strings.TrimSpace(g.Subjects)
		if dom == "" {
			dom = "*"
		}
		to := strings.TrimSpace(g.To)
		if strings.HasPrefix(to, rolePrefix+separator) {
			to = SubjectForRole(to)
		}
		for _, fg := range g.FieldGroups {
			if _, err := s.enforcer.AddPolicy(to, dom, string(fg), defaultAction); err != nil {
				return fmt.Errorf("authz: add grant: %w", err)
			}
		}
	}
	return nil
}

func (s *Service) Mode() Mode {
	return s.mode
}

// Check evaluates a request without applying the enforcement mode.
func (s *Service) Check(req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.enforcer.Enforce(SubjectForActor(req.Actor.ID), DomainForSubject(req.SubjectID), string(req.FieldGroup), defaultAction)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	return ok, nil
}

// Allowed applies the enforcement mode: disabled admits everything, shadow
// admits but logs denials, enforce admits only granted requests.
func (s *Service) Allowed(ctx context.Context, req Request) bool {
	if s.mode == ModeDisabled {
		recordDecision(s.mode, req.FieldGroup, true)
		return true
	}

	allowed, err := s.Check(req)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("authz check failed")
		allowed = false
	}
	recordDecision(s.mode, req.FieldGroup, allowed)
	if allowed {
		return true
	}

	fields := logrus.Fields{
		"actor_id":    req.Actor.ID,
		"subject_id":  req.SubjectID,
		"field_group": req.FieldGroup,
		"mode":        s.mode,
	}
	if s.mode == ModeShadow {
		s.logger.WithContext(ctx).WithFields(fields).Warn("authz shadow deny")
		return true
	}
	s.logger.WithContext(ctx).WithFields(fields).Info("authz denied request")
	return false
}

// Predicate exposes the service as a Predicate with the admin override applied.
func (s *Service) Predicate() Predicate {
	return WithAdminOverride(s.Allowed)
}

// Grant adds a single runtime grant.
func (s *Service) Grant(actorID int64, subjects string, group FieldGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(subjects) == "" {
		subjects = "*"
	}
	_, err := s.enforcer.AddPolicy(SubjectForActor(actorID), subjects, string(group), defaultAction)
	return err
}
