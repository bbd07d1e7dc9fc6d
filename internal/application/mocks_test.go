package application

import (
	"context"
	"sync"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// --- Mock credential store ---

// memCredStore is an in-memory CredentialStore mirroring the SQLite upsert
// semantics (single row per external account, field-level carry-forward).
type memCredStore struct {
	mu         sync.Mutex
	byExternal map[string]model.Credential
	upserts    int
	failRead   error
	failUpsert error
}

func newMemCredStore() *memCredStore {
	return &memCredStore{byExternal: make(map[string]model.Credential)}
}

func (m *memCredStore) Upsert(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.upserts++

	if existing, ok := m.byExternal[cred.ExternalAccountID]; ok {
		if cred.RefreshToken == "" {
			cred.RefreshToken = existing.RefreshToken
		}
		if cred.TokenType == "" {
			cred.TokenType = existing.TokenType
		}
		if cred.Scope == "" {
			cred.Scope = existing.Scope
		}
		if cred.APIDomain == "" {
			cred.APIDomain = existing.APIDomain
		}
	}
	cred.Revoked = false
	m.byExternal[cred.ExternalAccountID] = cred
	return nil
}

func (m *memCredStore) GetActiveByAppUser(_ context.Context, appUserID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRead != nil {
		return nil, m.failRead
	}

	var best *model.Credential
	for _, cred := range m.byExternal {
		if cred.AppUserID != appUserID || cred.Revoked {
			continue
		}
		if best == nil || cred.UpdatedAt.After(best.UpdatedAt) {
			c := cred
			best = &c
		}
	}
	return best, nil
}

func (m *memCredStore) GetActiveByExternalID(_ context.Context, externalAccountID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRead != nil {
		return nil, m.failRead
	}

	cred, ok := m.byExternal[externalAccountID]
	if !ok || cred.Revoked {
		return nil, nil
	}
	c := cred
	return &c, nil
}

func (m *memCredStore) FindExpiringWithin(_ context.Context, window time.Duration) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRead != nil {
		return nil, m.failRead
	}

	cutoff := time.Now().Add(window)
	var out []model.Credential
	for _, cred := range m.byExternal {
		if cred.Revoked || cred.ExpiresAt.After(cutoff) {
			continue
		}
		out = append(out, cred)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ExpiresAt.Before(out[i].ExpiresAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memCredStore) Revoke(_ context.Context, externalAccountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cred, ok := m.byExternal[externalAccountID]; ok {
		cred.Revoked = true
		m.byExternal[externalAccountID] = cred
	}
	return nil
}

func (m *memCredStore) get(externalAccountID string) model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byExternal[externalAccountID]
}

// --- Mock provider client ---

type mockProvider struct {
	mu           sync.Mutex
	exchangeFn   func(code string) (*model.TokenGrant, error)
	refreshFn    func(refreshToken string) (*model.TokenGrant, error)
	identityFn   func(accessToken, hint string) (string, error)
	refreshCalls int
	absences     []model.TimeOffRequest
	absenceErr   error
}

func (m *mockProvider) AuthorizeURL(state string) string {
	return "https://provider.example.com/oauth/authorize?state=" + state
}

func (m *mockProvider) ExchangeCode(_ context.Context, code string) (*model.TokenGrant, error) {
	return m.exchangeFn(code)
}

func (m *mockProvider) RefreshGrant(_ context.Context, refreshToken string) (*model.TokenGrant, error) {
	m.mu.Lock()
	m.refreshCalls++
	m.mu.Unlock()
	return m.refreshFn(refreshToken)
}

func (m *mockProvider) ResolveIdentity(_ context.Context, accessToken, hint string) (string, error) {
	return m.identityFn(accessToken, hint)
}

func (m *mockProvider) CreateAbsence(_ context.Context, _, _ string, req model.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.absenceErr != nil {
		return m.absenceErr
	}
	m.absences = append(m.absences, req)
	return nil
}

func (m *mockProvider) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}

// --- Mock time-off store ---

type memTimeOffStore struct {
	mu    sync.Mutex
	byID  map[string]model.TimeOffRequest
	order []string
}

func newMemTimeOffStore() *memTimeOffStore {
	return &memTimeOffStore{byID: make(map[string]model.TimeOffRequest)}
}

func (m *memTimeOffStore) Create(_ context.Context, req model.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[req.ID] = req
	m.order = append(m.order, req.ID)
	return nil
}

func (m *memTimeOffStore) GetByID(_ context.Context, id string) (*model.TimeOffRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	r := req
	return &r, nil
}

func (m *memTimeOffStore) Update(_ context.Context, req model.TimeOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[req.ID] = req
	return nil
}

func (m *memTimeOffStore) ListByEmployee(_ context.Context, employeeID string) ([]model.TimeOffRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeOffRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		if req := m.byID[m.order[i]]; req.EmployeeID == employeeID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memTimeOffStore) ListByStatus(_ context.Context, status model.TimeOffStatus) ([]model.TimeOffRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TimeOffRequest
	for i := len(m.order) - 1; i >= 0; i-- {
		if req := m.byID[m.order[i]]; req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

// --- Mock notifier ---

type sentMail struct {
	to, subject, body string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockNotifier) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// Compile-time port satisfaction checks for the mocks.
var (
	_ driven.CredentialStore = (*memCredStore)(nil)
	_ driven.ProviderClient  = (*mockProvider)(nil)
	_ driven.TimeOffStore    = (*memTimeOffStore)(nil)
	_ driven.Notifier        = (*mockNotifier)(nil)
)
