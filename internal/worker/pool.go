package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"chatforms-backend/internal/metrics"
	"chatforms-backend/internal/models"
	"chatforms-backend/internal/webhook"
)

const (
	lockTTL         = 10 * time.Minute
	popTimeout      = 30 * time.Second
	popErrorBackoff = 2 * time.Second
)

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
}

type formStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Form, error)
	GetResponse(ctx context.Context, id uuid.UUID) (*models.FormResponse, error)
	UpdateForwardStatus(ctx context.Context, id uuid.UUID, status string) error
}

// Poster performs the outbound webhook call.
type Poster interface {
	PostJSON(ctx context.Context, kind, target string, payload any) (*webhook.Reply, error)
}

// Publisher notifies a user about job progress.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

// Alerter is told when a form response could not be forwarded after all retries.
type Alerter interface {
	FormForwardFailed(ctx context.Context, form *models.Form, resp *models.FormResponse, reason string) error
}

// Pool runs background jobs popped from redis lists.
type Pool struct {
	redis       *redis.Client
	jobs        jobStore
	forms       formStore
	poster      Poster
	publisher   Publisher
	alerter     Alerter
	workerCount int
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	logger      zerolog.Logger
	popBackoff  time.Duration

	// requeue is swapped out in tests.
	requeue func(job *models.Job, delay time.Duration)
}

func NewPool(
	redisClient *redis.Client,
	jobs jobStore,
	forms formStore,
	poster Poster,
	publisher Publisher,
	alerter Alerter,
	workerCount int,
	logger zerolog.Logger,
) *Pool {
	p := &Pool{
		redis:       redisClient,
		jobs:        jobs,
		forms:       forms,
		poster:      poster,
		publisher:   publisher,
		alerter:     alerter,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		logger:      logger.With().Str("component", "worker").Logger(),
		popBackoff:  popErrorBackoff,
	}
	p.requeue = p.requeueAfter
	return p
}

// JobQueueName returns the redis list a job type is queued on.
func JobQueueName(jobType string) string {
	return "queue:" + jobType
}

// Enqueue pushes a persisted job onto its queue.
func (p *Pool) Enqueue(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := p.redis.LPush(ctx, JobQueueName(job.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (p *Pool) Start() {
	queues := []string{JobQueueName(models.JobTypeFormForward)}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i, queues)
	}

	p.logger.Info().Int("workers", p.workerCount).Msg("started worker goroutines")
}

// Stop signals the workers and waits for them to finish their current job.
// A worker blocked in BLPOP returns once the pop times out.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}

func (p *Pool) worker(id int, queues []string) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		select {
		case <-p.stopChan:
			logger.Debug().Msg("worker shutting down")
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout; redis.Nil is the timeout
		result, err := p.redis.BLPop(ctx, popTimeout, queues...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			logger.Warn().Err(err).Dur("backoff", p.popBackoff).Msg("failed to pop job")
			if !p.pause(p.popBackoff) {
				return
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			logger.Warn().Err(err).Msg("failed to parse job")
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		logger.Info().Str("job_id", job.ID.String()).Str("type", job.Type).Msg("processing job")
		p.Handle(ctx, &job)

		if err := p.redis.Del(ctx, lockKey).Err(); err != nil {
			logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to release job lock")
		}
	}
}

// pause waits for d and reports false when the pool was stopped meanwhile.
func (p *Pool) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.stopChan:
		return false
	case <-t.C:
		return true
	}
}

// Handle runs one job to completion and records its outcome.
func (p *Pool) Handle(ctx context.Context, job *models.Job) {
	p.warnIf(p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing), job, "failed to update job status")

	var processErr error
	switch job.Type {
	case models.JobTypeFormForward:
		processErr = p.processFormForward(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		p.handleFailure(ctx, job, processErr)
	} else {
		p.handleSuccess(ctx, job)
	}
}

// processFormForward posts a stored form response to the form's webhook.
func (p *Pool) processFormForward(ctx context.Context, job *models.Job) error {
	resp, err := p.forms.GetResponse(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to load form response: %w", err)
	}

	form, err := p.forms.GetByID(ctx, resp.FormID)
	if err != nil {
		return fmt.Errorf("failed to load form: %w", err)
	}

	target, ok := webhook.EntryFromNullable(form.WebhookURL).URL()
	if !ok {
		return p.forms.UpdateForwardStatus(ctx, resp.ID, models.ForwardStatusNone)
	}

	payload := map[string]any{
		"form_id":      form.ID,
		"form_title":   form.Title,
		"response_id":  resp.ID,
		"user_id":      resp.UserID,
		"submitted_at": resp.SubmittedAt,
		"data":         resp.Data,
	}

	reply, err := p.poster.PostJSON(ctx, "form", target, payload)
	if err != nil {
		return err
	}
	if !reply.OK() {
		return fmt.Errorf("webhook returned %d %s", reply.Status, reply.StatusText)
	}

	return p.forms.UpdateForwardStatus(ctx, resp.ID, models.ForwardStatusDelivered)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.warnIf(p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted), job, "failed to update job status")
	if job.Type == models.JobTypeFormForward {
		metrics.FormForwards.WithLabelValues("delivered").Inc()
	}
	p.publish(ctx, job, models.JobStatusCompleted, "")

	p.logger.Info().Str("job_id", job.ID.String()).Msg("job completed")
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if job.RetryCount < maxRetries {
		p.logger.Warn().
			Str("job_id", job.ID.String()).
			Int("attempt", job.RetryCount).
			Str("error", errMsg).
			Msg("job failed, retrying")
		p.warnIf(p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPending), job, "failed to update job status")
		p.warnIf(p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount), job, "failed to record job error")

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeue(job, backoff)
		return
	}

	p.logger.Error().Str("job_id", job.ID.String()).Str("error", errMsg).Msg("job failed permanently")
	p.warnIf(p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed), job, "failed to update job status")
	p.warnIf(p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount), job, "failed to record job error")
	if job.Type == models.JobTypeFormForward {
		p.warnIf(p.forms.UpdateForwardStatus(ctx, job.ReferenceID, models.ForwardStatusFailed), job, "failed to mark form response failed")
		metrics.FormForwards.WithLabelValues("failed").Inc()
		p.alertForwardFailure(ctx, job, errMsg)
	}
	p.publish(ctx, job, models.JobStatusFailed, errMsg)
}

func (p *Pool) alertForwardFailure(ctx context.Context, job *models.Job, reason string) {
	if p.alerter == nil {
		return
	}
	resp, err := p.forms.GetResponse(ctx, job.ReferenceID)
	if err != nil {
		p.warnIf(err, job, "failed to load form response for alert")
		return
	}
	form, err := p.forms.GetByID(ctx, resp.FormID)
	if err != nil {
		p.warnIf(err, job, "failed to load form for alert")
		return
	}
	if err := p.alerter.FormForwardFailed(ctx, form, resp, reason); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to send forward failure alert")
	}
}

func (p *Pool) requeueAfter(job *models.Job, delay time.Duration) {
	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(delay, func() {
		err := p.redis.LPush(context.Background(), JobQueueName(job.Type), string(jobBytes)).Err()
		p.warnIf(err, job, "failed to requeue job")
	})
}

func (p *Pool) warnIf(err error, job *models.Job, msg string) {
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg(msg)
	}
}

func (p *Pool) publish(ctx context.Context, job *models.Job, status, errMsg string) {
	if p.publisher == nil {
		return
	}
	err := p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: models.WSTypeJobUpdate,
		Payload: models.JobUpdateEvent{
			JobID:       job.ID,
			ReferenceID: job.ReferenceID,
			Type:        job.Type,
			Status:      status,
			Error:       errMsg,
		},
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to publish job update")
	}
}
