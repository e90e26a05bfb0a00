package tools

import (
	"context"
	"errors"
	"fmt"

	"knowshowgo/internal/formdata"
	"knowshowgo/internal/types"
)

// RegisterFormTools registers the form-data surface:
//
//	forms.save_credential - store a domain-scoped credential
//	forms.lookup          - resolve selectors and values for a target URL
//
// forms.lookup output feeds web.fill directly: plans chain
// forms.lookup -> web.fill with the returned selectors/values maps.
func RegisterFormTools(r *Registry, retriever *formdata.Retriever) {
	r.Register("forms.save_credential", func(ctx context.Context, params types.Props) (types.Props, error) {
		domain := firstString(params, "domain", "url")
		if domain == "" {
			return nil, fmt.Errorf("%w: forms.save_credential requires domain", types.ErrInvalidArgument)
		}
		uuid, err := retriever.SaveCredential(ctx, formdata.Credential{
			Domain:   domain,
			Username: params.String("username"),
			Password: params.String("password"),
		})
		if err != nil {
			return nil, err
		}
		return types.Props{"uuid": uuid, "status": types.StatusSuccess}, nil
	})

	r.Register("forms.lookup", func(ctx context.Context, params types.Props) (types.Props, error) {
		url := firstString(params, "url", "domain")
		if url == "" {
			return nil, fmt.Errorf("%w: forms.lookup requires url", types.ErrInvalidArgument)
		}

		cred, err := retriever.CredentialFor(ctx, url)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		identity, err := retriever.IdentityFor(ctx, url)
		if err != nil {
			return nil, err
		}

		stored := map[string]string{}
		if raw, ok := params["selectors"].(map[string]interface{}); ok {
			for field, sel := range raw {
				if s, ok := sel.(string); ok {
					stored[field] = s
				}
			}
		}

		selectors, values := retriever.BuildSelectors(identity, cred, stored)
		return types.Props{
			"selectors":      selectors,
			"values":         values,
			"has_credential": cred != nil,
		}, nil
	})
}
