package policy

import (
	"strings"

	"github.com/hrapp/hr-auth/models"
)

// AnyMethod matches every HTTP method
const AnyMethod = ""

// Rule grants access to a path pattern for a set of roles
type Rule struct {
	Method  string
	Pattern string
	Roles   []models.Role
}

// Allows reports whether role is listed on the rule
func (r Rule) Allows(role models.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) String() string {
	method := r.Method
	if method == AnyMethod {
		method = "*"
	}
	return method + " " + r.Pattern + " " + strings.Join(models.RoleStrings(r.Roles), ",")
}

// Decision is the outcome of evaluating a request against the table
type Decision struct {
	Allowed bool
	// Matched is false when no rule covered the path; such requests need
	// authentication only.
	Matched bool
	Rule    *Rule
}
