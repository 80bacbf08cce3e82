package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hrapp/hr-auth/models"
)

var (
	admin    = models.RoleAdmin
	hr       = models.RoleHR
	employee = models.RoleEmployee
)

func roles(r ...models.Role) []models.Role { return r }

// DefaultRules is the built-in HR route table
func DefaultRules() []Rule {
	return []Rule{
		// Attendance
		{AnyMethod, "/api/attendance/mark/**", roles(employee)},
		{AnyMethod, "/api/attendance/me/**", roles(employee)},
		{AnyMethod, "/api/attendance/override", roles(admin)},
		{AnyMethod, "/api/attendance/all/**", roles(hr, admin)},
		{AnyMethod, "/api/attendance/status/**", roles(hr)},
		{"GET", "/api/attendance/*", roles(hr, admin)},

		// Leave
		{"POST", "/api/leaves", roles(employee)},
		{"GET", "/api/leaves/my", roles(employee)},
		{"GET", "/api/leaves", roles(hr, admin)},
		{"PUT", "/api/leaves/*/status", roles(hr, admin)},
		{AnyMethod, "/api/leave/**", roles(hr)},

		// Users
		{AnyMethod, "/api/users/me/**", roles(admin, hr, employee)},
		{"GET", "/api/users/hr/employees", roles(hr)},
		{"PUT", "/api/users/*/salary", roles(admin, hr)},
		{"POST", "/api/users/*/profile-pic", roles(admin)},
		{"GET", "/api/users/*", roles(admin, hr, employee)},

		// Role areas
		{AnyMethod, "/api/admin/**", roles(admin)},
		{AnyMethod, "/api/hr/**", roles(hr)},
		{AnyMethod, "/api/employee/**", roles(employee)},
	}
}

// DefaultTable returns the compiled built-in table
func DefaultTable() *Table {
	return MustTable(DefaultRules())
}

type fileRule struct {
	Method  string   `yaml:"method"`
	Pattern string   `yaml:"pattern"`
	Roles   []string `yaml:"roles"`
}

type fileTable struct {
	Rules []fileRule `yaml:"rules"`
}

// LoadTable reads a YAML rule file:
//
//	rules:
//	  - method: GET
//	    pattern: /api/reports/**
//	    roles: [HR, ADMIN]
//
// An empty path returns the default table.
func LoadTable(filename string) (*Table, error) {
	if filename == "" {
		return DefaultTable(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable compiles a YAML rule document
func ParseTable(data []byte) (*Table, error) {
	var doc fileTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("%w: policy file has no rules", ErrInvalidRule)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, fr := range doc.Rules {
		rule := Rule{Method: fr.Method, Pattern: fr.Pattern}
		for _, r := range fr.Roles {
			rule.Roles = append(rule.Roles, models.Role(r))
		}
		rules = append(rules, rule)
	}
	return NewTable(rules)
}
