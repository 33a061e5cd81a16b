// Package auth protects the HTTP API.
//
// There is a single operator account configured in config.yaml
// (security.admin). Its password is stored as an Argon2id PHC string and
// exchanged at /api/v1/auth/login for a short-lived HS256 JWT access token.
package auth
