// Package policy holds the role table consulted after authentication.
//
// A table maps (method, path pattern) to the roles allowed to call it.
// Patterns are slash separated; "*" matches exactly one segment and a
// trailing "/**" matches any remainder, including none. When several rules
// match, the most specific wins:
//   - more literal segments first
//   - then patterns without "**"
//   - then rules bound to a method
//   - then declaration order
//
// Paths no rule matches only require an authenticated principal.
package policy
