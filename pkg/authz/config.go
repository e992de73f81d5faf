package authz

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Policy is the YAML policy document:
//
//	mode: enforce
//	roles:
//	  - actor: 42
//	    role: hr_admin
//	grants:
//	  - to: role:hr_admin
//	    subjects: "*"
//	    field_groups: [manager_check_in, official_check_in]
type Policy struct {
	Mode   Mode          `yaml:"mode"`
	Roles  []RoleBinding `yaml:"roles"`
	Grants []Grant       `yaml:"grants"`
}

type RoleBinding struct {
	Actor int64  `yaml:"actor"`
	Role  string `yaml:"role"`
}

// Grant admits To (user:N or role:slug) on subjects matching Subjects
// ("*", "subject:N" or "subject:*") for the listed field groups.
type Grant struct {
	To          string       `yaml:"to"`
	Subjects    string       `yaml:"subjects"`
	FieldGroups []FieldGroup `yaml:"field_groups"`
}

func (p Policy) validate() error {
	for i, g := range p.Grants {
		if strings.TrimSpace(g.To) == "" {
			return configError("grant %d: missing 'to'", i)
		}
		if len(g.FieldGroups) == 0 {
			return configError("grant %d: no field_groups", i)
		}
	}
	for i, r := range p.Roles {
		if r.Actor <= 0 || strings.TrimSpace(r.Role) == "" {
			return configError("role binding %d: actor and role are required", i)
		}
	}
	return nil
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, configError("invalid policy: %v", err)
	}
	p.Mode = sanitizeMode(p.Mode)
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicyFile reads and parses the policy at path.
func LoadPolicyFile(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Policy{}, configError("missing policy path")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Policy{}, configError("read policy %s: %v", path, err)
	}
	return ParsePolicy(data)
}

// Config captures all inputs necessary to initialize the Casbin enforcer.
type Config struct {
	Policy Policy
	Logger *logrus.Logger
}
