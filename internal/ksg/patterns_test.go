package ksg

import (
	"context"
	"testing"

	"knowshowgo/internal/llm"
	"knowshowgo/internal/types"
)

func storeLoginPattern(t *testing.T, k *KnowShowGo, name, url string, emb []float32) string {
	t.Helper()
	id, err := k.StorePattern(context.Background(), name, map[string]interface{}{
		"url":       url,
		"form_type": "login",
		"html":      loginHTML,
		"fields": map[string]interface{}{
			"email":    "#email",
			"password": "input[name='password']",
		},
	}, emb, "")
	if err != nil {
		t.Fatalf("StorePattern failed: %v", err)
	}
	return id
}

func TestStorePatternDerivesFingerprint(t *testing.T) {
	k, s := newTestKSG(t)
	id := storeLoginPattern(t, k, "example login", "https://www.example.com/login", nil)

	node, err := s.GetNode(context.Background(), id)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	fp := fingerprintFromProps(node.Props["fingerprint"])
	if fp.Host != "example.com" || fp.FormType != "login" {
		t.Errorf("fingerprint = %+v", fp)
	}
	if fp.FieldTypes["email"] != 1 {
		t.Errorf("field types = %v", fp.FieldTypes)
	}
	if node.Props.Int("success_count") != 0 {
		t.Errorf("fresh pattern success_count = %v", node.Props["success_count"])
	}
}

func TestStorePatternLinksConcept(t *testing.T) {
	k, s := newTestKSG(t)
	ctx := context.Background()

	proto, _ := k.CreatePrototype(ctx, "FormPattern", "patterns", "core", nil, nil, "")
	concept, _ := k.CreateConcept(ctx, proto, types.Props{"title": "example.com"}, nil, "")
	id, err := k.StorePattern(ctx, "login", map[string]interface{}{"url": "https://example.com"}, nil, concept)
	if err != nil {
		t.Fatalf("StorePattern failed: %v", err)
	}

	edges, _ := s.GetEdges(ctx, concept, id, types.RelHasPattern)
	if len(edges) != 1 {
		t.Errorf("has_pattern edges: %d", len(edges))
	}
}

func TestFindBestPatternScoring(t *testing.T) {
	k, _ := newTestKSG(t)
	ctx := context.Background()

	same := storeLoginPattern(t, k, "example login", "https://example.com/login", nil)
	storeLoginPattern(t, k, "other login", "https://other.org/login", nil)

	matches, err := k.FindBestPattern(ctx, "https://www.example.com/signin", loginHTML, "login", 5)
	if err != nil {
		t.Fatalf("FindBestPattern failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	if matches[0].Node.UUID != same {
		t.Errorf("host match should rank first, got %s", matches[0].Node.UUID)
	}
	// Host +3, form type +1, identical fields +2.
	if matches[0].Score != 6.0 {
		t.Errorf("top score = %v, want 6", matches[0].Score)
	}
	// Same form shape, wrong host.
	if matches[1].Score != 3.0 {
		t.Errorf("second score = %v, want 3", matches[1].Score)
	}
	if matches[0].PatternData["url"] != "https://example.com/login" {
		t.Errorf("pattern data = %v", matches[0].PatternData)
	}
}

func TestRecordPatternSuccessAccumulates(t *testing.T) {
	k, s := newTestKSG(t)
	ctx := context.Background()

	id := storeLoginPattern(t, k, "login", "https://example.com", nil)
	for i := 0; i < 3; i++ {
		if err := k.RecordPatternSuccess(ctx, id, map[string]interface{}{"url": "https://example.com/login"}); err != nil {
			t.Fatalf("RecordPatternSuccess %d: %v", i, err)
		}
	}

	node, _ := s.GetNode(ctx, id)
	if node.Props.Int("success_count") != 3 {
		t.Errorf("success_count = %v, want 3", node.Props["success_count"])
	}
	if _, ok := node.Props["last_success_context"]; !ok {
		t.Error("success context not recorded")
	}
}

func TestTransferPatternFuzzyFallback(t *testing.T) {
	k, _ := newTestKSG(t)
	ctx := context.Background()

	id := storeLoginPattern(t, k, "login", "https://example.com", nil)
	result, err := k.TransferPattern(ctx, id, TargetContext{
		URL: "https://newsite.com/signup",
		AvailableFields: map[string]string{
			"Email-Address": "#signup-email",
			"pass_word":     "#signup-pass",
			"nickname":      "#nick",
		},
	}, nil)
	if err != nil {
		t.Fatalf("TransferPattern failed: %v", err)
	}

	if result.Mapping["email"] != "Email-Address" {
		t.Errorf("email mapping = %q", result.Mapping["email"])
	}
	if result.Mapping["password"] != "pass_word" {
		t.Errorf("password mapping = %q", result.Mapping["password"])
	}
	fields := result.TransferredPattern["fields"].(map[string]interface{})
	if fields["email"] != "#signup-email" {
		t.Errorf("transferred selector = %v", fields["email"])
	}
}

func TestTransferPatternViaLLM(t *testing.T) {
	k, _ := newTestKSG(t)
	ctx := context.Background()

	id := storeLoginPattern(t, k, "login", "https://example.com", nil)
	chat := llm.NewScriptedClient().Queue(`{"mapping":{"email":"user_email","password":"user_pass"}}`)

	result, err := k.TransferPattern(ctx, id, TargetContext{
		URL: "https://newsite.com",
		AvailableFields: map[string]string{
			"user_email": "#ue",
			"user_pass":  "#up",
		},
	}, chat)
	if err != nil {
		t.Fatalf("TransferPattern failed: %v", err)
	}
	if result.Mapping["email"] != "user_email" {
		t.Errorf("mapping = %v", result.Mapping)
	}
	calls := chat.Calls()
	if len(calls) != 1 || !calls[0].Opts.JSONOnly {
		t.Errorf("LLM transfer must demand JSON, calls = %+v", calls)
	}
}

func TestTransferPatternLLMFailureFallsBack(t *testing.T) {
	k, _ := newTestKSG(t)
	ctx := context.Background()

	id := storeLoginPattern(t, k, "login", "https://example.com", nil)
	chat := llm.NewScriptedClient().Queue(`not json at all`)

	result, err := k.TransferPattern(ctx, id, TargetContext{
		URL:             "https://newsite.com",
		AvailableFields: map[string]string{"email": "#e"},
	}, chat)
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if result.Mapping["email"] != "email" {
		t.Errorf("fuzzy fallback mapping = %v", result.Mapping)
	}
}

func TestAutoGeneralizeRequiresEnoughNeighbors(t *testing.T) {
	k, s := newTestKSG(t)
	ctx := context.Background()

	seed := storeLoginPattern(t, k, "p0", "https://a.com", []float32{1, 0})

	// One similar neighbor is below the min_similar=2 threshold.
	storeLoginPattern(t, k, "p1", "https://b.com", []float32{1, 0.01})
	genID, err := k.AutoGeneralize(ctx, seed, 2, 0.9)
	if err != nil {
		t.Fatalf("AutoGeneralize failed: %v", err)
	}
	if genID != "" {
		t.Fatal("generalized with too few neighbors")
	}

	storeLoginPattern(t, k, "p2", "https://c.com", []float32{0.99, 0.02})
	genID, err = k.AutoGeneralize(ctx, seed, 2, 0.9)
	if err != nil {
		t.Fatalf("AutoGeneralize failed: %v", err)
	}
	if genID == "" {
		t.Fatal("expected generalization with 2 close neighbors")
	}

	gen, _ := s.GetNode(ctx, genID)
	if !gen.Props.Bool("generalized") {
		t.Errorf("generalized concept props = %v", gen.Props)
	}
	edges, _ := s.GetEdges(ctx, genID, "", types.AssociationPrefix+"generalized_from")
	if len(edges) != 3 {
		t.Errorf("generalized_from edges: %d, want 3", len(edges))
	}
}

func TestAutoGeneralizeNoEmbeddingIsNoop(t *testing.T) {
	k, _ := newTestKSG(t)
	id := storeLoginPattern(t, k, "plain", "https://a.com", nil)

	genID, err := k.AutoGeneralize(context.Background(), id, 2, 0.9)
	if err != nil || genID != "" {
		t.Errorf("no-embedding pattern: %q, %v", genID, err)
	}
}
