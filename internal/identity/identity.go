// Package identity derives the LocalIdentity this host presents to peers.
//
// Grounded on original_source/ndrop/dukto.py's get_system_signature(),
// which builds "<user> at <host> (<os>)" from getpass.getuser() and
// platform.uname(). The Go equivalent uses os/user, os.Hostname, and
// runtime.GOOS for the same three fields, derived once at startup and
// never mutated.
package identity

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
)

// Identity is {user, host, os}, computed once and held immutable.
type Identity struct {
	User string
	Host string
	OS   string
}

// Local computes this process's Identity from the operating system.
func Local() (Identity, error) {
	u := "unknown"
	if cur, err := user.Current(); err == nil && cur.Username != "" {
		u = cur.Username
	}
	host, err := os.Hostname()
	if err != nil {
		return Identity{}, fmt.Errorf("identity: hostname: %w", err)
	}
	return Identity{User: u, Host: host, OS: runtime.GOOS}, nil
}

// Signature renders the identity as the wire-level signature string every
// hello carries: "<user> at <host> (<os>)". Goodbye frames carry the fixed
// "Bye Bye" payload instead.
func (id Identity) Signature() string {
	return fmt.Sprintf("%s at %s (%s)", id.User, id.Host, id.OS)
}
