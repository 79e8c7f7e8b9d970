package identityfakes

import (
	"context"
	"sync"

	"github.com/edustack/go-access-server/identity"
)

var _ identity.SSOFlow = (*FakeSSOFlow)(nil)

// FakeSSOFlow maps authorization codes to raw ID tokens for tests.
type FakeSSOFlow struct {
	authURL string
	codes   map[string]string
	lock    sync.RWMutex
}

func NewFakeSSOFlow(authURL string) *FakeSSOFlow {
	return &FakeSSOFlow{authURL: authURL, codes: make(map[string]string)}
}

// Grant registers code as exchangeable for the given raw ID token.
func (f *FakeSSOFlow) Grant(code, rawIDToken string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.codes[code] = rawIDToken
}

func (f *FakeSSOFlow) AuthCodeURL(state string) string {
	return f.authURL + "?state=" + state
}

func (f *FakeSSOFlow) Exchange(_ context.Context, code string) (string, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	rawIDToken, ok := f.codes[code]
	if !ok {
		return "", identity.IdentityRejectedErr
	}
	return rawIDToken, nil
}
