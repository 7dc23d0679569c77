package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/omnifm/omnifm-bot/internal/i18n"
	"github.com/omnifm/omnifm-bot/types"
)

type recordedVerdict struct {
	groupID string
	command string
	roles   []string
}

type fakePerms struct {
	verdict types.Verdict
	calls   []recordedVerdict
}

func (f *fakePerms) Evaluate(groupID, command string, callerRoleIDs []string) types.Verdict {
	f.calls = append(f.calls, recordedVerdict{groupID, command, callerRoleIDs})
	return f.verdict
}

type fakeSink struct {
	events []types.UsageEvent
	err    error
}

func (f *fakeSink) RecordUsage(event types.UsageEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func okHandler(msg string) Handler {
	return func(context.Context, types.Command) types.Reply {
		return types.Reply{OK: true, Message: msg}
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, cmd types.Command) types.Reply {
				trace = append(trace, name)
				return next(ctx, cmd)
			}
		}
	}

	h := Chain(okHandler("done"), tag("outer"), tag("inner"))
	h(context.Background(), types.Command{})

	if len(trace) != 2 || trace[0] != "outer" || trace[1] != "inner" {
		t.Errorf("expected outer before inner, got %v", trace)
	}
}

func TestPermissionDeny(t *testing.T) {
	perms := &fakePerms{verdict: types.Verdict{Allowed: false, Reason: types.ReasonDeny}}
	called := false
	h := Permission(perms, i18n.EN)(func(context.Context, types.Command) types.Reply {
		called = true
		return types.Reply{OK: true}
	})

	cmd := types.Command{Name: "play", GroupID: "g", CallerRoleIDs: []string{"r1", "r2"}}
	reply := h(context.Background(), cmd)

	if reply.OK {
		t.Error("denied caller must get a failure reply")
	}
	if called {
		t.Error("denied command must not reach the handler")
	}
	if len(perms.calls) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(perms.calls))
	}
	got := perms.calls[0]
	if got.groupID != "g" || got.command != "play" || len(got.roles) != 2 {
		t.Errorf("unexpected evaluation args: %+v", got)
	}
}

func TestPermissionAllowPassesThrough(t *testing.T) {
	perms := &fakePerms{verdict: types.Verdict{Allowed: true, Reason: types.ReasonOpen}}
	h := Permission(perms, i18n.EN)(okHandler("played"))

	reply := h(context.Background(), types.Command{Name: "play"})
	if !reply.OK || reply.Message != "played" {
		t.Errorf("allowed command should pass through, got %+v", reply)
	}
}

func TestAuditRecordsEvent(t *testing.T) {
	sink := &fakeSink{}
	h := Audit(sink, nil)(okHandler("fine"))

	cmd := types.Command{
		Name:       "play",
		AgentID:    "agent-1",
		GroupID:    "100000000000000001",
		CallerID:   "200000000000000001",
		StationKey: "jazz",
	}
	h(context.Background(), cmd)

	if len(sink.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.EventID == "" {
		t.Error("event id must be set")
	}
	if ev.Command != "play" || ev.GroupID != cmd.GroupID || ev.StationKey != "jazz" {
		t.Errorf("unexpected event fields: %+v", ev)
	}
	if !ev.Allowed || ev.Reason != "" {
		t.Errorf("OK replies must audit as allowed with no reason, got %+v", ev)
	}
	if ev.OccurredAt.IsZero() {
		t.Error("occurredAt must be stamped")
	}
}

func TestAuditRecordsFailureReason(t *testing.T) {
	sink := &fakeSink{}
	h := Audit(sink, nil)(func(context.Context, types.Command) types.Reply {
		return types.Reply{OK: false, Message: "denied"}
	})

	h(context.Background(), types.Command{Name: "play"})

	if len(sink.events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(sink.events))
	}
	ev := sink.events[0]
	if ev.Allowed || ev.Reason != "denied" {
		t.Errorf("failed replies must carry the reply message as reason, got %+v", ev)
	}
}

func TestAuditSinkFailureDoesNotAffectReply(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	h := Audit(sink, nil)(okHandler("fine"))

	reply := h(context.Background(), types.Command{Name: "play"})
	if !reply.OK || reply.Message != "fine" {
		t.Errorf("sink failures must not change the reply, got %+v", reply)
	}
}

func TestAuditNilSinkSkips(t *testing.T) {
	h := Audit(nil, nil)(okHandler("fine"))
	reply := h(context.Background(), types.Command{Name: "play"})
	if !reply.OK {
		t.Errorf("nil sink must pass through, got %+v", reply)
	}
}

func TestRecoverTurnsPanicIntoReply(t *testing.T) {
	h := Recover(nil, i18n.EN)(func(context.Context, types.Command) types.Reply {
		panic("boom")
	})

	reply := h(context.Background(), types.Command{Name: "play"})
	if reply.OK || reply.Message == "" {
		t.Errorf("panic must become a failure reply, got %+v", reply)
	}
}
