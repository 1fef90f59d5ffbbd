// Package executor implements the Executor (C8): dispatches each pending
// QueueItem to the chat transport, pacing sends with a typing indicator
// and an inter-message cooldown.
//
// The per-item dispatch loop - try the item, log and continue on failure,
// never retry within the same pass - is grounded on tools/invoker.go's
// SerialInvoker.Invoke: a results/first-error bookkeeping loop over a
// slice of calls, generalized here to a slice of QueueItems with no
// result slice (the only output this domain needs is a dispatched count).
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	supervisor "github.com/kestrelhq/persona-supervisor"
)

const (
	minTypingDuration = 2 * time.Second
	maxTypingDuration  = 8 * time.Second
	msPerChar          = 100 * time.Millisecond
)

const actionAddReaction = "add_reaction"

// Executor is the C8 node. It also satisfies hitl.Dispatcher, so a
// hitl.Gate can wrap it directly.
type Executor struct {
	Transport supervisor.ChatTransport
	Observer  supervisor.Observer
	Opts      supervisor.Options

	// latestMessageTimestamp is the most-recent message's timestamp in the
	// current tick's window, used to elide a reply-to when the target is
	// already the newest message (spec §4.8). Set once per tick via
	// SetLatestMessageTimestamp before Dispatch is called.
	latestMessageTimestamp string
}

// New builds an Executor.
func New(transport supervisor.ChatTransport, observer supervisor.Observer, opts supervisor.Options) *Executor {
	return &Executor{Transport: transport, Observer: observer, Opts: opts}
}

// SetLatestMessageTimestamp records the newest message's timestamp in the
// current tick's recent_messages window (spec §4.8's reply-elision rule).
func (e *Executor) SetLatestMessageTimestamp(ts string) {
	e.latestMessageTimestamp = ts
}

// Dispatch sends every pending item in order, returning how many were
// successfully delivered. It never returns an error for an individual
// item's failure (spec §4.8: "log and continue... at-most-once send; no
// retry within a tick"); the returned error is reserved for a context
// cancellation that aborts the whole pass.
func (e *Executor) Dispatch(ctx context.Context, queue []supervisor.QueueItem) (int, error) {
	dispatched := 0
	for i, item := range queue {
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}

		var err error
		if item.ActionID == actionAddReaction {
			err = e.dispatchReaction(ctx, item)
		} else {
			err = e.dispatchMessage(ctx, item)
		}
		if err != nil {
			if e.Observer != nil {
				e.Observer.OnError(ctx, "executor", fmt.Errorf("dispatch %s for %s: %w", item.ActionID, item.AgentName, err))
			}
			continue
		}
		dispatched++

		if len(queue) > 1 && i < len(queue)-1 {
			if err := sleep(ctx, e.cooldown()); err != nil {
				return dispatched, err
			}
		}
	}
	return dispatched, nil
}

func (e *Executor) cooldown() time.Duration {
	if e.Opts.ExecutorCooldown > 0 {
		return e.Opts.ExecutorCooldown
	}
	return 160 * time.Second
}

func (e *Executor) dispatchReaction(ctx context.Context, item supervisor.QueueItem) error {
	if item.TargetMessage == nil || item.TargetMessage.Timestamp == "" {
		return fmt.Errorf("add_reaction requires a target_message timestamp")
	}
	ts := toISOMillis(item.TargetMessage.Timestamp)
	return e.Transport.AddReaction(ctx, item.PhoneNumber, e.Opts.ChatID, ts, item.ActionContent)
}

func (e *Executor) dispatchMessage(ctx context.Context, item supervisor.QueueItem) error {
	replyTo := e.resolveReplyTarget(item)

	duration := typingDuration(item.ActionContent)
	if err := e.Transport.ShowTyping(ctx, item.PhoneNumber, e.Opts.ChatID, duration); err != nil {
		return fmt.Errorf("show typing: %w", err)
	}
	if err := sleep(ctx, duration/time.Duration(e.typingSleepDivisor())); err != nil {
		return err
	}
	return e.Transport.SendMessage(ctx, item.PhoneNumber, e.Opts.ChatID, item.ActionContent, replyTo)
}

func (e *Executor) typingSleepDivisor() int {
	if e.Opts.TypingSleepDivisor > 0 {
		return e.Opts.TypingSleepDivisor
	}
	return 750
}

// resolveReplyTarget elides the reply-to when the target message is
// already the most recent message in the window (spec §4.8).
func (e *Executor) resolveReplyTarget(item supervisor.QueueItem) string {
	if item.TargetMessage == nil || item.TargetMessage.Timestamp == "" {
		return ""
	}
	if item.TargetMessage.Timestamp == e.latestMessageTimestamp {
		return ""
	}
	return item.TargetMessage.Timestamp
}

func typingDuration(content string) time.Duration {
	d := time.Duration(len(content)) * msPerChar
	if d < minTypingDuration {
		return minTypingDuration
	}
	if d > maxTypingDuration {
		return maxTypingDuration
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// toISOMillis reformats a timestamp as ISO-8601 with millisecond precision
// and a trailing Z (spec §4.8). Timestamps that don't parse are returned
// unchanged rather than dropped, since a reaction with a slightly-off
// timestamp is better than none.
func toISOMillis(ts string) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}
	}
	return strings.TrimSpace(ts)
}
