package toolrules

import (
	"testing"
	"time"
)

func TestInitRuleRejectsWrongFirstCall(t *testing.T) {
	e := NewEngine([]Rule{Init("open_session")}, PolicyFatal, nil)
	v, policy := e.CheckCall("send_message", time.Now())
	if v == nil || v.Kind != ViolationInitRequired {
		t.Fatalf("expected ViolationInitRequired, got %+v", v)
	}
	if policy != PolicyFatal {
		t.Fatalf("policy = %v, want PolicyFatal", policy)
	}
}

func TestInitRuleAllowsConfiguredFirstCall(t *testing.T) {
	e := NewEngine([]Rule{Init("open_session")}, PolicyFatal, nil)
	if v, _ := e.CheckCall("open_session", time.Now()); v != nil {
		t.Fatalf("expected no violation, got %+v", v)
	}
}

func TestPrecedenceBlocksUntilBeforeCompletes(t *testing.T) {
	e := NewEngine([]Rule{Precedence("search", "summarize")}, PolicyFatal, nil)
	now := time.Now()

	if v, _ := e.CheckCall("summarize", now); v == nil || v.Kind != ViolationPrecedence {
		t.Fatalf("expected ViolationPrecedence before search runs, got %+v", v)
	}

	e.RecordStart("search", now)
	e.RecordCompleted("search", now, false)

	if v, _ := e.CheckCall("summarize", now); v != nil {
		t.Fatalf("expected summarize to be allowed after search completes, got %+v", v)
	}
}

func TestExclusiveGroupAllowsOnlyOneMember(t *testing.T) {
	e := NewEngine([]Rule{ExclusiveGroup("approve", "reject")}, PolicyFatal, nil)
	now := time.Now()

	e.RecordStart("approve", now)

	if v, _ := e.CheckCall("reject", now); v == nil || v.Kind != ViolationExclusiveGroup {
		t.Fatalf("expected ViolationExclusiveGroup, got %+v", v)
	}
	if v, _ := e.CheckCall("approve", now); v != nil {
		t.Fatalf("calling the same tool again should not trip the group rule, got %+v", v)
	}
}

func TestCooldownBySecondsBlocksImmediateRecall(t *testing.T) {
	e := NewEngine([]Rule{Cooldown("search_web", 60, 0)}, PolicyFatal, nil)
	now := time.Now()
	e.RecordStart("search_web", now)
	e.RecordCompleted("search_web", now, false)

	if v, _ := e.CheckCall("search_web", now.Add(time.Second)); v == nil || v.Kind != ViolationCooldown {
		t.Fatalf("expected ViolationCooldown, got %+v", v)
	}
	if v, _ := e.CheckCall("search_web", now.Add(61*time.Second)); v != nil {
		t.Fatalf("expected cooldown to have elapsed, got %+v", v)
	}
}

func TestCooldownByCallsBlocksUntilEnoughInterveningCalls(t *testing.T) {
	e := NewEngine([]Rule{Cooldown("search_web", 0, 2)}, PolicyFatal, nil)
	now := time.Now()
	e.RecordStart("search_web", now)
	e.RecordCompleted("search_web", now, false)

	if v, _ := e.CheckCall("search_web", now); v == nil {
		t.Fatal("expected cooldown violation with zero intervening calls")
	}

	e.RecordStart("other_tool", now)
	e.RecordCompleted("other_tool", now, false)
	if v, _ := e.CheckCall("search_web", now); v == nil {
		t.Fatal("expected cooldown violation with only one intervening call")
	}

	e.RecordStart("another_tool", now)
	e.RecordCompleted("another_tool", now, false)
	if v, _ := e.CheckCall("search_web", now); v != nil {
		t.Fatalf("expected cooldown to clear after two intervening calls, got %+v", v)
	}
}

func TestHeartbeatFlagSurfacesAfterCompletion(t *testing.T) {
	e := NewEngine(nil, PolicyFatal, nil)
	now := time.Now()
	e.RecordStart("long_task", now)
	if e.NeedsHeartbeat() {
		t.Fatal("should not need heartbeat before completion")
	}
	e.RecordCompleted("long_task", now, true)
	if !e.NeedsHeartbeat() {
		t.Fatal("expected NeedsHeartbeat to be true after a heartbeat-requesting completion")
	}
}

func TestCanEndTurnRequiresExitTool(t *testing.T) {
	e := NewEngine([]Rule{Exit("close_session")}, PolicyFatal, nil)
	now := time.Now()

	if ok, v := e.CanEndTurn(); ok || v.Kind != ViolationExitRequired {
		t.Fatalf("expected turn to be blocked without exit tool, ok=%v v=%+v", ok, v)
	}

	e.RecordStart("close_session", now)
	e.RecordCompleted("close_session", now, false)
	if ok, _ := e.CanEndTurn(); !ok {
		t.Fatal("expected turn to be allowed to end after exit tool completes")
	}
}

func TestStartTurnResetsState(t *testing.T) {
	e := NewEngine([]Rule{Init("open_session")}, PolicyFatal, nil)
	now := time.Now()
	e.RecordStart("open_session", now)
	e.RecordCompleted("open_session", now, false)
	e.StartTurn()

	if v, _ := e.CheckCall("other", now); v == nil || v.Kind != ViolationInitRequired {
		t.Fatalf("expected init rule to re-apply after StartTurn, got %+v", v)
	}
}

func TestPolicyOverridesDefaultPerViolationKind(t *testing.T) {
	e := NewEngine([]Rule{Init("open_session")}, PolicyFatal, map[ViolationKind]Policy{
		ViolationInitRequired: PolicySkip,
	})
	_, policy := e.CheckCall("other", time.Now())
	if policy != PolicySkip {
		t.Fatalf("policy = %v, want PolicySkip", policy)
	}
}
