package procedure

import (
	"context"
	"fmt"
	"testing"

	"knowshowgo/internal/types"
)

// failingFill rejects every selector except those in ok.
func failingFill(ok map[string]bool) func(types.Props) (types.Props, error) {
	return func(params types.Props) (types.Props, error) {
		sel := params.String("selector")
		if ok[sel] {
			return types.Props{"status": types.StatusCompleted}, nil
		}
		return nil, fmt.Errorf("selector %s not found", sel)
	}
}

func fillStep(selectors, values map[string]interface{}) *types.StepView {
	payload := types.Props{"selectors": selectors}
	if values != nil {
		payload["values"] = values
	}
	return &types.StepView{Tool: "web.fill", Payload: payload}
}

func TestFillPrimarySelectorNoFallbackRecorded(t *testing.T) {
	runner := newFakeRunner()
	runner.on("web.fill", failingFill(map[string]bool{"#email": true}))
	ex := NewExecutor(newTestStore(t), runner)

	res := ex.ExecuteSteps(context.Background(), []*types.StepView{
		fillStep(map[string]interface{}{"email": "#email"}, map[string]interface{}{"email": "a@b.c"}),
	}, "t")

	if res.Status != types.StatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	out := res.Results[0].Output
	if _, ok := out["fallback_selector"]; ok {
		t.Error("primary success must not record a fallback")
	}
	if _, ok := out["fallback_selectors"]; ok {
		t.Error("primary success must not record a fallback map")
	}
	attempted := out["attempted_selectors"].([]interface{})
	if len(attempted) != 1 || attempted[0] != "#email" {
		t.Errorf("attempted = %v", attempted)
	}
	if runner.calls[0].Params.String("value") != "a@b.c" {
		t.Errorf("fill params = %+v", runner.calls[0].Params)
	}
}

func TestFillFallbackSelectorWins(t *testing.T) {
	// The stored selector is stale; the type-based fallback works.
	runner := newFakeRunner()
	runner.on("web.fill", failingFill(map[string]bool{"input[type='email']": true}))
	ex := NewExecutor(newTestStore(t), runner)

	res := ex.ExecuteSteps(context.Background(), []*types.StepView{
		fillStep(map[string]interface{}{"email": "#stale-email"}, nil),
	}, "t")

	if res.Status != types.StatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	out := res.Results[0].Output
	winners := out["fallback_selectors"].(map[string]interface{})
	if winners["email"] != "input[type='email']" {
		t.Errorf("winner = %v", winners)
	}
	// A lone winner is also surfaced as a plain string for guard paths.
	if out["fallback_selector"] != "input[type='email']" {
		t.Errorf("fallback_selector = %v", out["fallback_selector"])
	}
	attempted := out["attempted_selectors"].([]interface{})
	if len(attempted) != 2 || attempted[0] != "#stale-email" {
		t.Errorf("attempted = %v", attempted)
	}
}

func TestFillAllSelectorsFailHalts(t *testing.T) {
	runner := newFakeRunner()
	runner.on("web.fill", failingFill(nil))
	ex := NewExecutor(newTestStore(t), runner)

	res := ex.ExecuteSteps(context.Background(), []*types.StepView{
		fillStep(map[string]interface{}{"email": "#e"}, nil),
	}, "t")

	if res.Status != types.StatusError {
		t.Fatalf("result = %+v", res)
	}
	if res.Tool != "web.fill" {
		t.Errorf("failing tool = %q", res.Tool)
	}
}

func TestFillMultipleFieldsDeterministicOrder(t *testing.T) {
	ok := map[string]bool{"#email": true, "input[type='password']": true}
	runner := newFakeRunner()
	runner.on("web.fill", failingFill(ok))
	ex := NewExecutor(newTestStore(t), runner)

	res := ex.ExecuteSteps(context.Background(), []*types.StepView{
		fillStep(map[string]interface{}{
			"email":    "#email",
			"password": "#stale-pass",
		}, nil),
	}, "t")

	if res.Status != types.StatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	winners := res.Results[0].Output["fallback_selectors"].(map[string]interface{})
	if len(winners) != 1 || winners["password"] != "input[type='password']" {
		t.Errorf("winners = %v", winners)
	}
	// Fields fill in sorted order: email first, then password.
	if runner.calls[0].Params.String("selector") != "#email" {
		t.Errorf("first call = %+v", runner.calls[0].Params)
	}
}

func TestFallbacksForUnknownFieldUsesGeneric(t *testing.T) {
	got := FallbacksFor("middle_initial")
	if len(got) == 0 || got[0] != "input[type='text']" {
		t.Errorf("generic fallbacks = %v", got)
	}
	if got := FallbacksFor("Email"); got[0] != "input[type='email']" {
		t.Errorf("email fallbacks = %v", got)
	}
}

func TestFillWithoutSelectorMapGoesStraightThrough(t *testing.T) {
	runner := newFakeRunner("web.fill")
	ex := NewExecutor(newTestStore(t), runner)

	res := ex.ExecuteSteps(context.Background(), []*types.StepView{
		{Tool: "web.fill", Payload: types.Props{"selector": "#one", "value": "x"}},
	}, "t")
	if res.Status != types.StatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := res.Results[0].Output["attempted_selectors"]; ok {
		t.Error("plain fill must bypass the fallback path")
	}
}
