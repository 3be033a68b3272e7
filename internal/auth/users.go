package auth

import (
	"slices"
	"strings"
	"sync"

	"github.com/nerrad567/upswatch/internal/infrastructure/config"
)

// Action is a privileged operation beyond reading state.
type Action string

const (
	// ActionSet allows changing RW variables.
	ActionSet Action = "SET"

	// ActionFSD allows raising the forced-shutdown flag.
	ActionFSD Action = "FSD"
)

// allInstCmds in a user's instcmds list grants every instant command.
const allInstCmds = "all"

// User is one entry of the users section with its grants resolved.
type User struct {
	Name     string
	hash     string
	actions  []Action
	instcmds []string
	allCmds  bool
}

func newUser(cfg config.UserConfig) *User {
	u := &User{Name: cfg.Name, hash: cfg.Password}
	for _, a := range cfg.Actions {
		u.actions = append(u.actions, Action(strings.ToUpper(a)))
	}
	for _, c := range cfg.InstCmds {
		if strings.EqualFold(c, allInstCmds) {
			u.allCmds = true
			continue
		}
		u.instcmds = append(u.instcmds, strings.ToLower(c))
	}
	return u
}

// Can reports whether the user was granted action.
func (u *User) Can(action Action) bool {
	return slices.Contains(u.actions, action)
}

// CanInstCmd reports whether the user may run the named instant command.
func (u *User) CanInstCmd(cmd string) bool {
	return u.allCmds || slices.Contains(u.instcmds, strings.ToLower(cmd))
}

// Users is the set of configured API users. It is replaced wholesale when
// the configuration is reloaded.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Users struct {
	mu     sync.RWMutex
	byName map[string]*User
}

// NewUsers builds the user set from config.
func NewUsers(cfgs []config.UserConfig) *Users {
	u := &Users{}
	u.Replace(cfgs)
	return u
}

// Replace swaps in a new user list.
func (u *Users) Replace(cfgs []config.UserConfig) {
	byName := make(map[string]*User, len(cfgs))
	for _, c := range cfgs {
		byName[c.Name] = newUser(c)
	}
	u.mu.Lock()
	u.byName = byName
	u.mu.Unlock()
}

// Len returns the number of users.
func (u *Users) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.byName)
}

// Lookup returns the user with the exact name.
func (u *Users) Lookup(name string) (*User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byName[name]
	return user, ok
}

// Authenticate checks a name and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials.
func (u *Users) Authenticate(name, password string) (*User, error) {
	user, ok := u.Lookup(name)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, user.hash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
