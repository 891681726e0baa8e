package ops

import "github.com/hpungsan/heritage/internal/identity"

// WhoAmI returns the caller's canonical text form. An absent caller is anonymous.
func WhoAmI(caller identity.Identity) string {
	if caller == "" {
		return identity.Anonymous.String()
	}
	return caller.String()
}
