package formdata

import (
	"context"
	"errors"
	"testing"

	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

func newTestRetriever(t *testing.T) (*Retriever, *store.LocalStore) {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRetriever(s), s
}

func TestCredentialRoundTripByDomain(t *testing.T) {
	r, _ := newTestRetriever(t)
	ctx := context.Background()

	if _, err := r.SaveCredential(ctx, Credential{Domain: "https://www.Example.com/login", Username: "ada", Password: "s3cret"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	cred, err := r.CredentialFor(ctx, "https://example.com/account")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cred.Username != "ada" || cred.Password != "s3cret" || cred.Domain != "example.com" {
		t.Errorf("cred = %+v", cred)
	}
}

func TestSaveCredentialReplacesExisting(t *testing.T) {
	r, s := newTestRetriever(t)
	ctx := context.Background()

	r.SaveCredential(ctx, Credential{Domain: "example.com", Username: "old", Password: "p1"})
	r.SaveCredential(ctx, Credential{Domain: "example.com", Username: "new", Password: "p2"})

	results, _ := s.Search(ctx, "", 10, store.Filters{"kind": types.KindCredential, "domain": "example.com"}, nil)
	if len(results) != 1 {
		t.Fatalf("credential nodes = %d, want 1", len(results))
	}
	cred, _ := r.CredentialFor(ctx, "example.com")
	if cred.Username != "new" {
		t.Errorf("username = %q", cred.Username)
	}
}

func TestCredentialForMissingDomain(t *testing.T) {
	r, _ := newTestRetriever(t)
	if _, err := r.CredentialFor(context.Background(), "nowhere.invalid"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing credential: %v", err)
	}
}

func TestSaveCredentialValidation(t *testing.T) {
	r, _ := newTestRetriever(t)
	if _, err := r.SaveCredential(context.Background(), Credential{}); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("empty domain: %v", err)
	}
}

func seedSelf(t *testing.T, s *store.LocalStore) {
	t.Helper()
	_, err := s.UpsertNode(context.Background(), &types.Node{
		Kind:   types.KindPerson,
		Labels: []string{"Person"},
		Props:  types.Props{"is_self": true, "name": "Ada Lovelace", "email": "ada@example.com", "phone": "555-0100"},
	}, types.NewProvenance(types.SourceUser, 1.0, ""), "")
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
}

func TestIdentityForMergesPersonAndDomainFormData(t *testing.T) {
	r, s := newTestRetriever(t)
	ctx := context.Background()
	seedSelf(t, s)

	// Domain-scoped override plus an extra field.
	_, err := s.UpsertNode(ctx, &types.Node{
		Kind:  types.KindFormData,
		Props: types.Props{"domain": "example.com", "fields": map[string]interface{}{"email": "work@example.com", "company": "Analytical Engines"}},
	}, types.NewProvenance(types.SourceUser, 1.0, ""), "")
	if err != nil {
		t.Fatalf("seed form data: %v", err)
	}

	identity, err := r.IdentityFor(ctx, "https://www.example.com/signup")
	if err != nil {
		t.Fatalf("IdentityFor failed: %v", err)
	}
	if identity.Name != "Ada Lovelace" || identity.Phone != "555-0100" {
		t.Errorf("identity = %+v", identity)
	}
	if identity.Email != "work@example.com" {
		t.Errorf("domain override lost: %q", identity.Email)
	}
	if identity.Extra["company"] != "Analytical Engines" {
		t.Errorf("extras = %v", identity.Extra)
	}

	// A different domain sees only the generic profile.
	other, _ := r.IdentityFor(ctx, "https://other.org")
	if other.Email != "ada@example.com" || len(other.Extra) != 0 {
		t.Errorf("other-domain identity = %+v", other)
	}
}

func TestBuildSelectorsPrefersStoredThenFallback(t *testing.T) {
	r, _ := newTestRetriever(t)

	identity := &Identity{Email: "ada@example.com", Extra: map[string]string{"company": "AE"}}
	cred := &Credential{Username: "ada", Password: "s3cret"}
	stored := map[string]string{"email": "#signup-email"}

	selectors, values := r.BuildSelectors(identity, cred, stored)

	if selectors["email"] != "#signup-email" {
		t.Errorf("stored selector not preferred: %v", selectors["email"])
	}
	if selectors["password"] != "input[type='password']" {
		t.Errorf("password fallback = %v", selectors["password"])
	}
	if selectors["company"] != "input[type='text']" {
		t.Errorf("generic fallback = %v", selectors["company"])
	}
	if values["email"] != "ada@example.com" || values["password"] != "s3cret" {
		t.Errorf("values = %v", values)
	}
	if _, ok := selectors["name"]; ok {
		t.Error("empty identity fields must not produce selectors")
	}
}
