// Package workspace is the per-client controller. It follows the client's
// session, keeps the channel list and the selected scope's messages
// subscribed, and turns everything into a single stream of events.
package workspace

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/huddle/internal/channels"
	"github.com/lalith-99/huddle/internal/errs"
	"github.com/lalith-99/huddle/internal/models"
	"github.com/lalith-99/huddle/internal/session"
	"github.com/lalith-99/huddle/internal/subscription"
	"github.com/lalith-99/huddle/internal/transfer"
)

type EventType string

const (
	EventSession        EventType = "session"
	EventChannels       EventType = "channels"
	EventSelection      EventType = "selection"
	EventMessages       EventType = "messages"
	EventUploadProgress EventType = "upload_progress"
	EventError          EventType = "error"
)

type Event struct {
	Type     EventType          `json:"type"`
	Session  *session.State     `json:"session,omitempty"`
	Channels []models.Channel   `json:"channels,omitempty"`
	Scope    *models.Scope      `json:"scope,omitempty"`
	Messages []models.Message   `json:"messages,omitempty"`
	Progress *transfer.Progress `json:"progress,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type SessionSource interface {
	Observe() *subscription.Subscription[session.State]
}

type ChannelSource interface {
	ObserveChannels(ctx context.Context, userID uuid.UUID) *subscription.Subscription[[]models.Channel]
}

type MessageSource interface {
	ObserveMessages(ctx context.Context, scope models.Scope) *subscription.Subscription[[]models.Message]
	Authorize(ctx context.Context, scope models.Scope, userID uuid.UUID) error
}

type command struct {
	selectScope *models.Scope
	left        *uuid.UUID
	progress    *transfer.Progress
	err         error
}

// Workspace is safe for concurrent use. All subscription state is owned by
// a single goroutine; the exported methods send it commands.
type Workspace struct {
	sessions SessionSource
	channels ChannelSource
	messages MessageSource
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	selection models.Scope
	user      uuid.UUID
}

func New(sessions SessionSource, channelSrc ChannelSource, messageSrc MessageSource, logger *zap.Logger) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		sessions: sessions,
		channels: channelSrc,
		messages: messageSrc,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan command, 16),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// Events is closed after Close.
func (w *Workspace) Events() <-chan Event {
	return w.events
}

// Select switches the message subscription to scope. The previous
// subscription is released before the new one opens.
func (w *Workspace) Select(scope models.Scope) {
	w.send(command{selectScope: &scope})
}

// Left tells the workspace its user has left channelID. If that channel is
// selected, the selection moves to the public feed. Commands sent before a
// channel snapshot is published are applied before that snapshot, so the
// snapshot never repairs the selection to some other channel first.
func (w *Workspace) Left(channelID uuid.UUID) {
	w.send(command{left: &channelID})
}

// ReportUpload forwards upload progress to the event stream.
func (w *Workspace) ReportUpload(p transfer.Progress) {
	w.send(command{progress: &p})
}

// ReportError forwards a failure the client caused outside the workspace,
// such as a malformed command, to the event stream.
func (w *Workspace) ReportError(err error) {
	w.send(command{err: err})
}

// Selection returns the currently selected scope.
func (w *Workspace) Selection() models.Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selection
}

// UserID returns the signed-in user, or uuid.Nil.
func (w *Workspace) UserID() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.user
}

// Close releases every subscription and ends the event stream.
func (w *Workspace) Close() {
	w.cancel()
	<-w.done
}

func (w *Workspace) send(c command) {
	select {
	case w.cmds <- c:
	case <-w.ctx.Done():
	}
}

func (w *Workspace) emit(e Event) {
	select {
	case w.events <- e:
	case <-w.ctx.Done():
	}
}

func (w *Workspace) setSelection(scope models.Scope) {
	w.mu.Lock()
	w.selection = scope
	w.mu.Unlock()
}

func (w *Workspace) setUser(id uuid.UUID) {
	w.mu.Lock()
	w.user = id
	w.mu.Unlock()
}

// loop state, owned by run.
type loop struct {
	state     session.State
	selection models.Scope
	chSub     *subscription.Subscription[[]models.Channel]
	msgSub    *subscription.Subscription[[]models.Message]
}

func (w *Workspace) run() {
	defer close(w.done)
	defer close(w.events)

	sessSub := w.sessions.Observe()
	defer sessSub.Close()

	var l loop
	defer w.releaseAll(&l)

	for {
		var chUpdates <-chan []models.Channel
		if l.chSub != nil {
			chUpdates = l.chSub.Updates()
		}
		var msgUpdates <-chan []models.Message
		if l.msgSub != nil {
			msgUpdates = l.msgSub.Updates()
		}

		select {
		case <-w.ctx.Done():
			return

		case state, ok := <-sessSub.Updates():
			if !ok {
				return
			}
			w.onSession(&l, state)

		case set, ok := <-chUpdates:
			if !ok {
				w.onEnded(l.chSub.Err())
				l.chSub.Close()
				l.chSub = nil
				continue
			}
			w.drainCommands(&l)
			w.onChannels(&l, set)

		case msgs, ok := <-msgUpdates:
			if !ok {
				w.onEnded(l.msgSub.Err())
				l.msgSub.Close()
				l.msgSub = nil
				continue
			}
			scope := l.selection
			w.emit(Event{Type: EventMessages, Scope: &scope, Messages: msgs})

		case c := <-w.cmds:
			w.onCommand(&l, c)
		}
	}
}

func (w *Workspace) onCommand(l *loop, c command) {
	switch {
	case c.selectScope != nil:
		w.onSelect(l, *c.selectScope)
	case c.left != nil:
		w.onLeft(l, *c.left)
	case c.progress != nil:
		p := *c.progress
		ev := Event{Type: EventUploadProgress, Progress: &p}
		if p.Err != nil {
			ev.Error = errs.Message(p.Err)
		}
		w.emit(ev)
	case c.err != nil:
		w.emit(Event{Type: EventError, Error: errs.Message(c.err)})
	}
}

// drainCommands applies every command already queued.
func (w *Workspace) drainCommands(l *loop) {
	for {
		select {
		case c := <-w.cmds:
			w.onCommand(l, c)
		default:
			return
		}
	}
}

func (w *Workspace) onSession(l *loop, state session.State) {
	prev := l.state
	l.state = state
	w.setUser(state.UserID)

	switch {
	case !state.Authenticated:
		w.releaseAll(l)
		l.selection = models.PublicScope()
		w.setSelection(l.selection)
	case !prev.Authenticated || prev.UserID != state.UserID:
		w.releaseAll(l)
		l.selection = models.PublicScope()
		w.setSelection(l.selection)
		l.chSub = w.channels.ObserveChannels(w.ctx, state.UserID)
		l.msgSub = w.messages.ObserveMessages(w.ctx, l.selection)
	}

	s := state
	w.emit(Event{Type: EventSession, Session: &s})
}

func (w *Workspace) onChannels(l *loop, set []models.Channel) {
	w.emit(Event{Type: EventChannels, Channels: set})

	repaired := channels.RepairSelection(l.selection, set)
	if repaired != l.selection {
		w.swapMessages(l, repaired)
	}
}

func (w *Workspace) onSelect(l *loop, scope models.Scope) {
	if !l.state.Authenticated {
		w.emit(Event{Type: EventError, Error: "Sign in to open a chat."})
		return
	}
	if err := w.messages.Authorize(w.ctx, scope, l.state.UserID); err != nil {
		w.emit(Event{Type: EventError, Error: errs.Message(err)})
		return
	}
	if scope == l.selection && l.msgSub != nil {
		return
	}
	w.swapMessages(l, scope)
}

func (w *Workspace) onLeft(l *loop, channelID uuid.UUID) {
	if !l.state.Authenticated || l.selection.IsPublic() || l.selection.ChannelID() != channelID {
		return
	}
	w.swapMessages(l, models.PublicScope())
}

func (w *Workspace) swapMessages(l *loop, scope models.Scope) {
	if l.msgSub != nil {
		l.msgSub.Close()
		l.msgSub = nil
	}
	l.selection = scope
	w.setSelection(scope)
	l.msgSub = w.messages.ObserveMessages(w.ctx, scope)

	s := scope
	w.emit(Event{Type: EventSelection, Scope: &s})
}

func (w *Workspace) onEnded(err error) {
	if err == nil {
		return
	}
	w.logger.Warn("subscription ended", zap.Error(err))
	w.emit(Event{Type: EventError, Error: errs.Message(err)})
}

func (w *Workspace) releaseAll(l *loop) {
	if l.msgSub != nil {
		l.msgSub.Close()
		l.msgSub = nil
	}
	if l.chSub != nil {
		l.chSub.Close()
		l.chSub = nil
	}
}
