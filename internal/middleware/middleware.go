package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omnifm/omnifm-bot/internal/i18n"
	"github.com/omnifm/omnifm-bot/internal/messages"
	"github.com/omnifm/omnifm-bot/types"
)

// Handler processes one inbound command into a reply.
type Handler func(ctx context.Context, cmd types.Command) types.Reply

// Middleware wraps a handler with a cross-cutting concern.
type Middleware func(next Handler) Handler

// Chain applies middlewares left to right: the first listed runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PermissionEvaluator is the verdict surface of the permission store.
type PermissionEvaluator interface {
	Evaluate(groupID, command string, callerRoleIDs []string) types.Verdict
}

// Permission gates managed commands on the group's role rules. Denied callers
// get a reply, never an error across the platform boundary.
func Permission(perms PermissionEvaluator, lang i18n.Lang) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd types.Command) types.Reply {
			verdict := perms.Evaluate(cmd.GroupID, cmd.Name, cmd.CallerRoleIDs)
			if !verdict.Allowed {
				return types.Reply{OK: false, Message: messages.PermissionDenied(lang)}
			}
			return next(ctx, cmd)
		}
	}
}

// UsageRecorder is the audit sink surface. The Postgres store implements it;
// a nil sink disables auditing.
type UsageRecorder interface {
	RecordUsage(event types.UsageEvent) error
}

// Audit records every dispatched command. Sink failures are logged and never
// affect the reply.
func Audit(sink UsageRecorder, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd types.Command) types.Reply {
			reply := next(ctx, cmd)
			if sink == nil {
				return reply
			}
			event := types.UsageEvent{
				EventID:    uuid.NewString(),
				AgentID:    cmd.AgentID,
				GroupID:    cmd.GroupID,
				CallerID:   cmd.CallerID,
				Command:    cmd.Name,
				StationKey: cmd.StationKey,
				Allowed:    reply.OK,
				OccurredAt: time.Now().UTC(),
			}
			if !reply.OK {
				event.Reason = reply.Message
			}
			if err := sink.RecordUsage(event); err != nil {
				log.Warn("usage audit failed", "command", cmd.Name, "error", err)
			}
			return reply
		}
	}
}

// Recover converts a panicking handler into an error reply so a single bad
// command cannot kill the agent loop.
func Recover(log *slog.Logger, lang i18n.Lang) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, cmd types.Command) (reply types.Reply) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("command handler panicked", "command", cmd.Name, "panic", r)
					reply = types.Reply{OK: false, Message: messages.ErrorDefault(lang)}
				}
			}()
			return next(ctx, cmd)
		}
	}
}
