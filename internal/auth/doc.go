// Package auth authenticates API users and checks what they may change.
//
// Users are declared in config.yaml with an argon2id password hash, a
// list of actions (SET, FSD) and a list of instant commands (or "all").
// A successful login returns an HS256 JWT whose subject is the user name;
// permissions are resolved from the live user list on each request.
//
// Reading state needs no credentials. Only SET, INSTCMD and FSD do.
package auth
