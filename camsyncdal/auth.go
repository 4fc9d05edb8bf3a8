package camsyncdal

import "sync"

// AuthProvider gives access to the user's credentials for the edit submission service.
// How the token was obtained and where it is kept is up to the implementation.
type AuthProvider interface {
	IsLoggedIn() bool
	GetAccessToken() (string, bool)
}

// StaticTokenAuthProvider holds a token handed in at startup, e.g. from a flag or environment variable
type StaticTokenAuthProvider struct {
	mu    sync.RWMutex
	token string
}

func NewStaticTokenAuthProvider(token string) *StaticTokenAuthProvider {
	return &StaticTokenAuthProvider{token: token}
}

func (p *StaticTokenAuthProvider) IsLoggedIn() bool {
	_, ok := p.GetAccessToken()
	return ok
}

func (p *StaticTokenAuthProvider) GetAccessToken() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.token, p.token != ""
}

func (p *StaticTokenAuthProvider) SetAccessToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = token
}
