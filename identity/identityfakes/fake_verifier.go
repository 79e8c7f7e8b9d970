package identityfakes

import (
	"context"
	"sync"

	"github.com/edustack/go-access-server/identity"
)

var _ identity.Verifier = (*FakeVerifier)(nil)

// FakeVerifier maps raw ID tokens to identities for tests.
type FakeVerifier struct {
	identities map[string]identity.Identity
	lock       sync.RWMutex
}

func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{identities: make(map[string]identity.Identity)}
}

// Accept registers rawIDToken as valid for the given identity.
func (v *FakeVerifier) Accept(rawIDToken string, id identity.Identity) {
	v.lock.Lock()
	defer v.lock.Unlock()
	v.identities[rawIDToken] = id
}

func (v *FakeVerifier) VerifySSO(_ context.Context, rawIDToken string) (*identity.Identity, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()

	id, ok := v.identities[rawIDToken]
	if !ok {
		return nil, identity.IdentityRejectedErr
	}
	return &id, nil
}
