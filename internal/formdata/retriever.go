// Package formdata resolves stored credentials and identity fields for a
// target site, keyed by normalized domain, and builds the selector maps the
// web filler consumes.
package formdata

import (
	"context"
	"fmt"

	"knowshowgo/internal/ksg"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/procedure"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// Credential is a stored secret scoped to one domain.
type Credential struct {
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
	NodeUUID string `json:"node_uuid"`
}

// Identity carries the user's standing form-fill values.
type Identity struct {
	Name   string            `json:"name,omitempty"`
	Email  string            `json:"email,omitempty"`
	Phone  string            `json:"phone,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
	Source string            `json:"source,omitempty"` // node uuid
}

// Retriever looks up form data from the concept graph.
type Retriever struct {
	store store.MemoryStore
}

// NewRetriever creates a form-data retriever.
func NewRetriever(memStore store.MemoryStore) *Retriever {
	return &Retriever{store: memStore}
}

// SaveCredential stores or replaces the credential for a domain.
func (r *Retriever) SaveCredential(ctx context.Context, cred Credential) (string, error) {
	if cred.Domain == "" {
		return "", fmt.Errorf("%w: credential domain required", types.ErrInvalidArgument)
	}
	domain := ksg.NormalizeHost(cred.Domain)

	node := &types.Node{
		Kind:   types.KindCredential,
		Labels: []string{"Credential", domain},
		Props: types.Props{
			"domain":   domain,
			"username": cred.Username,
			"password": cred.Password,
		},
	}
	if existing, err := r.findCredentialNode(ctx, domain); err == nil && existing != nil {
		node.UUID = existing.UUID
	}
	return r.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceUser, 1.0, ""), "")
}

// CredentialFor returns the credential stored for the target URL's domain.
func (r *Retriever) CredentialFor(ctx context.Context, targetURL string) (*Credential, error) {
	domain := ksg.NormalizeHost(targetURL)
	node, err := r.findCredentialNode(ctx, domain)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("no credential for %s: %w", domain, types.ErrNotFound)
	}
	return &Credential{
		Domain:   domain,
		Username: node.Props.String("username"),
		Password: node.Props.String("password"),
		NodeUUID: node.UUID,
	}, nil
}

func (r *Retriever) findCredentialNode(ctx context.Context, domain string) (*types.Node, error) {
	results, err := r.store.Search(ctx, "", 1, store.Filters{"kind": types.KindCredential, "domain": domain}, nil)
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Node, nil
}

// IdentityFor assembles identity fields from Person and FormData concepts.
// FormData entries scoped to the target domain take precedence over the
// generic profile.
func (r *Retriever) IdentityFor(ctx context.Context, targetURL string) (*Identity, error) {
	identity := &Identity{Extra: map[string]string{}}

	people, err := r.store.Search(ctx, "", 1, store.Filters{"kind": types.KindPerson, "is_self": true}, nil)
	if err != nil {
		return nil, fmt.Errorf("person lookup failed: %w", err)
	}
	if len(people) > 0 {
		p := people[0].Node
		identity.Name = p.Props.String("name")
		identity.Email = p.Props.String("email")
		identity.Phone = p.Props.String("phone")
		identity.Source = p.UUID
	}

	domain := ksg.NormalizeHost(targetURL)
	forms, err := r.store.Search(ctx, "", 5, store.Filters{"kind": types.KindFormData, "domain": domain}, nil)
	if err != nil {
		return nil, fmt.Errorf("form data lookup failed: %w", err)
	}
	for _, f := range forms {
		fields, ok := f.Node.Props["fields"].(map[string]interface{})
		if !ok {
			continue
		}
		for name, v := range fields {
			if s, ok := v.(string); ok {
				switch name {
				case "name":
					identity.Name = s
				case "email":
					identity.Email = s
				case "phone":
					identity.Phone = s
				default:
					identity.Extra[name] = s
				}
			}
		}
	}

	logging.StoreDebug("identity for %s: name=%v email-set=%v extras=%d",
		domain, identity.Name != "", identity.Email != "", len(identity.Extra))
	return identity, nil
}

// BuildSelectors merges stored per-field selectors with the shared fallback
// table, returning the selector and value maps a web.fill step consumes.
func (r *Retriever) BuildSelectors(identity *Identity, cred *Credential, stored map[string]string) (selectors map[string]interface{}, values map[string]interface{}) {
	selectors = map[string]interface{}{}
	values = map[string]interface{}{}

	add := func(field, value string) {
		if value == "" {
			return
		}
		if sel, ok := stored[field]; ok && sel != "" {
			selectors[field] = sel
		} else {
			selectors[field] = procedure.FallbacksFor(field)[0]
		}
		values[field] = value
	}

	if identity != nil {
		add("name", identity.Name)
		add("email", identity.Email)
		add("phone", identity.Phone)
		for field, v := range identity.Extra {
			add(field, v)
		}
	}
	if cred != nil {
		add("username", cred.Username)
		add("password", cred.Password)
	}
	return selectors, values
}
