package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatforms-backend/internal/chatlog"
	"chatforms-backend/internal/metrics"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/webhook"
)

var ErrEmptyMessage = errors.New("message is empty")

// Resolver yields the webhook configured for a chat.
type Resolver interface {
	Resolve(ctx context.Context, chatID string) (webhook.Entry, error)
}

// Proxy forwards a message to the chat's webhook through the forwarding proxy.
type Proxy interface {
	Forward(ctx context.Context, req models.ProxyRequest) (*models.ProxyResponse, error)
}

// Notification is a user-visible failure notice for one chat.
type Notification struct {
	ChatID  string
	Reason  Reason
	Message string
}

// Events receives the side effects a delivery surfaces to the user.
type Events interface {
	Typing(chatID string, active bool)
	Notify(n Notification)
}

type noopEvents struct{}

func (noopEvents) Typing(string, bool)  {}
func (noopEvents) Notify(Notification) {}

// Outcome is the terminal result of a delivery.
type Outcome struct {
	State      State
	Reason     Reason
	Detail     string
	Status     int
	BotMessage *models.Message
}

// Delivery tracks one submitted message through the webhook leg.
type Delivery struct {
	UserMessage models.Message

	mu      sync.Mutex
	state   State
	outcome Outcome
	done    chan struct{}
}

func newDelivery(msg models.Message) *Delivery {
	return &Delivery{
		UserMessage: msg,
		state:       StateAppended,
		done:        make(chan struct{}),
	}
}

func (d *Delivery) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the delivery reaches a terminal state or ctx ends.
func (d *Delivery) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (d *Delivery) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Delivery) finish(o Outcome) {
	d.mu.Lock()
	d.state = o.State
	d.outcome = o
	d.mu.Unlock()
	close(d.done)
}

type Options struct {
	Timeout time.Duration
	BotName string
	Logger  zerolog.Logger
}

// Pipeline appends user messages to a log and relays them to the chat's
// webhook, appending the normalized reply as a system message.
type Pipeline struct {
	log      *chatlog.Log
	resolver Resolver
	proxy    Proxy
	events   Events
	timeout  time.Duration
	botName  string
	logger   zerolog.Logger

	wg sync.WaitGroup
}

func New(log *chatlog.Log, resolver Resolver, proxy Proxy, events Events, opts Options) *Pipeline {
	if events == nil {
		events = noopEvents{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = webhook.DefaultTimeout
	}
	if opts.BotName == "" {
		opts.BotName = models.DefaultBotName
	}
	return &Pipeline{
		log:      log,
		resolver: resolver,
		proxy:    proxy,
		events:   events,
		timeout:  opts.Timeout,
		botName:  opts.BotName,
		logger:   opts.Logger,
	}
}

// Submit appends the message and starts the webhook leg in the background.
// The user message is in the log by the time Submit returns.
func (p *Pipeline) Submit(ctx context.Context, chatID string, author models.Author, text string) (*Delivery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	msg := chatlog.NewMessage(chatID, author, text)
	p.log.Append(msg)

	d := newDelivery(msg)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(context.WithoutCancel(ctx), d)
	}()
	return d, nil
}

// Wait blocks until every in-flight delivery has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) deliver(ctx context.Context, d *Delivery) {
	outcome := p.run(ctx, d)
	metrics.PipelineOutcomes.WithLabelValues(outcome.State.String(), outcome.Reason.String()).Inc()

	if outcome.State == StateFailed || outcome.Reason == ReasonResolveFailed {
		p.logger.Warn().
			Str("chat_id", d.UserMessage.ChatID).
			Str("message_id", d.UserMessage.ID).
			Str("reason", outcome.Reason.String()).
			Str("detail", outcome.Detail).
			Msg("message delivery failed")
		p.events.Notify(Notification{
			ChatID:  d.UserMessage.ChatID,
			Reason:  outcome.Reason,
			Message: p.notice(outcome),
		})
	}
	d.finish(outcome)
}

func (p *Pipeline) run(ctx context.Context, d *Delivery) Outcome {
	msg := d.UserMessage

	entry, err := p.resolver.Resolve(ctx, msg.ChatID)
	if err != nil {
		return Outcome{State: StateNoWebhookConfigured, Reason: ReasonResolveFailed, Detail: err.Error()}
	}
	if _, ok := entry.URL(); !ok {
		return Outcome{State: StateNoWebhookConfigured}
	}

	d.setState(StateAwaitingWebhook)
	p.events.Typing(msg.ChatID, true)
	defer p.events.Typing(msg.ChatID, false)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.forward(callCtx, models.ProxyRequest{
		ChatID:  msg.ChatID,
		Message: msg.Content.(string),
		UserID:  msg.AuthorID,
	})
	if err != nil {
		return classify(err)
	}
	if !resp.Success {
		if isTimeoutText(resp.Error) {
			return Outcome{State: StateFailed, Reason: ReasonTimeout, Detail: resp.Error}
		}
		return Outcome{State: StateFailed, Reason: ReasonWebhookError, Detail: resp.Error}
	}

	result := webhook.Normalize(resp.Response)
	bot := chatlog.NewMessage(msg.ChatID, models.Author{
		ID:     models.SystemAuthorID,
		Name:   p.botName,
		Avatar: result.Avatar,
	}, result.Text)
	p.log.Append(bot)

	return Outcome{State: StateCompleted, BotMessage: &bot}
}

// forward abandons the proxy call once ctx ends, even if the proxy
// implementation does not honour cancellation.
func (p *Pipeline) forward(ctx context.Context, req models.ProxyRequest) (*models.ProxyResponse, error) {
	type result struct {
		resp *models.ProxyResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := p.proxy.Forward(ctx, req)
		ch <- result{resp, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && r.resp == nil {
			return nil, errors.New("empty proxy response")
		}
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func classify(err error) Outcome {
	var statusErr *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, webhook.ErrTimeout):
		return Outcome{State: StateFailed, Reason: ReasonTimeout, Detail: err.Error()}
	case errors.As(err, &statusErr):
		return Outcome{State: StateFailed, Reason: ReasonProxyStatus, Status: statusErr.Status, Detail: err.Error()}
	default:
		return Outcome{State: StateFailed, Reason: ReasonUnknown, Detail: err.Error()}
	}
}

func isTimeoutText(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "timeout")
}

func (p *Pipeline) notice(o Outcome) string {
	switch o.Reason {
	case ReasonWebhookError:
		if o.Detail == "" {
			return "The webhook reported an error."
		}
		return "The webhook reported an error: " + o.Detail
	case ReasonProxyStatus:
		return fmt.Sprintf("The webhook proxy failed with HTTP status %d.", o.Status)
	case ReasonTimeout:
		return fmt.Sprintf("The webhook did not respond within %s.", p.timeout)
	case ReasonResolveFailed:
		return "Could not look up this chat's webhook. Replies are disabled for this chat until you sign in again."
	default:
		return "Something went wrong while contacting the webhook."
	}
}
