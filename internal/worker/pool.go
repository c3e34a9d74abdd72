package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"chatrelay-backend/internal/models"
	"chatrelay-backend/internal/queue"
)

// JobSource is the compute-queue surface the pool consumes from,
// implemented by *queue.JobQueue. Every dequeued job must be settled with
// exactly one of Ack or Requeue so no job is ever held only in worker
// memory.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*models.AIJob, error)
	Ack(ctx context.Context, job *models.AIJob)
	Requeue(ctx context.Context, job *models.AIJob) error
	AcquireLock(ctx context.Context, jobID string) bool
	ReleaseLock(ctx context.Context, jobID string)
	ScheduleRetry(ctx context.Context, job *models.AIJob) error
	MarkCompleted(ctx context.Context, job *models.AIJob)
	MarkFailed(ctx context.Context, job *models.AIJob, err error)
	Policy() queue.RetryPolicy
}

// DeliveryPublisher carries finished replies toward the gateway,
// implemented by *queue.EventQueue.
type DeliveryPublisher interface {
	PublishDelivery(ctx context.Context, event *models.DeliveryEvent) error
}

// ConversationCache is the slice of the cache layer the pool uses,
// implemented by *cache.Cache. All methods are fail-soft.
type ConversationCache interface {
	ConversationHistory(ctx context.Context, conversationID string) ([]models.ChatTurn, bool)
	SetConversationHistory(ctx context.Context, conversationID string, history []models.ChatTurn) bool
	AppendToHistory(ctx context.Context, conversationID, role, content string) []models.ChatTurn
	ConversationContext(ctx context.Context, conversationID string) (*models.ConversationContext, bool)
	SetConversationContext(ctx context.Context, conversationID string, convCtx *models.ConversationContext) bool
	CachedResponse(ctx context.Context, query string) (string, bool)
	CacheResponse(ctx context.Context, query, response string) bool
}

// MessageStore is the persisted system of record, implemented by
// *services.ChatService.
type MessageStore interface {
	MessagesByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
	AddMessage(ctx context.Context, conversationID, sender, content, messageType string) (*models.Message, error)
}

// Inference generates a reply, implemented by *services.InferenceClient.
type Inference interface {
	Complete(ctx context.Context, systemPrompt string, history []models.ChatTurn, message string) (string, error)
}

// historyWindow is how many recent turns go into the prompt.
const historyWindow = 10

// Pool dequeues compute jobs, obtains a reply via cache or inference,
// persists it, and publishes a delivery event. It never touches live
// sockets.
type Pool struct {
	jobs      JobSource
	events    DeliveryPublisher
	cache     ConversationCache
	store     MessageStore
	inference Inference

	concurrency int
	limiter     *rateLimiter
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(
	jobs JobSource,
	events DeliveryPublisher,
	cache ConversationCache,
	store MessageStore,
	inference Inference,
	concurrency int,
	rateLimit int,
	rateWindow time.Duration,
) *Pool {
	return &Pool{
		jobs:        jobs,
		events:      events,
		cache:       cache,
		store:       store,
		inference:   inference,
		concurrency: concurrency,
		limiter:     newRateLimiter(rateLimit, rateWindow),
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Printf("worker: started %d goroutines", p.concurrency)
}

func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			log.Printf("worker %d: shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		job, err := p.jobs.Dequeue(ctx, 30*time.Second)
		if err != nil {
			log.Printf("worker %d: dequeue failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		// Single in-flight attempt per job id. A refused lock means
		// another worker holds this job (a redelivered duplicate), so
		// put it back instead of dropping what we already popped.
		if !p.jobs.AcquireLock(ctx, job.ID) {
			p.requeue(ctx, job)
			select {
			case <-p.stopChan:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if !p.limiter.wait(p.stopChan) {
			// Shutting down before the attempt started: the job goes
			// back for another worker.
			p.requeue(ctx, job)
			p.jobs.ReleaseLock(ctx, job.ID)
			return
		}

		p.handleJob(ctx, job)
		p.jobs.Ack(ctx, job)
		p.jobs.ReleaseLock(ctx, job.ID)
	}
}

func (p *Pool) requeue(ctx context.Context, job *models.AIJob) {
	if err := p.jobs.Requeue(ctx, job); err != nil {
		log.Printf("worker: failed to requeue job %s: %v", job.ID, err)
	}
}

// handleJob runs one attempt and routes the outcome to the retry policy or
// the delivery queue.
func (p *Pool) handleJob(ctx context.Context, job *models.AIJob) {
	job.Attempt++
	log.Printf("worker: processing job %s (attempt %d) for conversation %s", job.ID, job.Attempt, job.ConversationID)

	reply, err := p.process(ctx, job)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, reply)
}

// process obtains a reply for the job's message. Any step failure aborts
// the attempt and bubbles to the retry path; cache absence never does.
func (p *Pool) process(ctx context.Context, job *models.AIJob) (string, error) {
	history, err := p.conversationHistory(ctx, job.ConversationID)
	if err != nil {
		return "", err
	}

	convCtx, ok := p.cache.ConversationContext(ctx, job.ConversationID)
	if !ok {
		convCtx = &models.ConversationContext{SystemPrompt: models.DefaultSystemPrompt}
	}

	reply, memoized := p.cache.CachedResponse(ctx, job.Message)
	if !memoized {
		window := history
		if len(window) > historyWindow {
			window = window[len(window)-historyWindow:]
		}

		reply, err = p.inference.Complete(ctx, convCtx.SystemPrompt, window, job.Message)
		if err != nil {
			return "", fmt.Errorf("failed to generate AI response: %w", err)
		}
		p.cache.CacheResponse(ctx, job.Message, reply)
	} else {
		log.Printf("worker: memoized response hit for job %s", job.ID)
	}

	if _, err := p.store.AddMessage(ctx, job.ConversationID, "ai", reply, "ai"); err != nil {
		return "", fmt.Errorf("failed to persist AI reply: %w", err)
	}

	p.cache.SetConversationContext(ctx, job.ConversationID, &models.ConversationContext{
		SystemPrompt: models.DefaultSystemPrompt,
		LastTopic:    extractTopic(job.Message),
		LastUpdated:  time.Now().UTC(),
	})

	p.cache.AppendToHistory(ctx, job.ConversationID, "user", job.Message)
	p.cache.AppendToHistory(ctx, job.ConversationID, "assistant", reply)

	return reply, nil
}

// conversationHistory reads the cached history, rebuilding it from the
// message store and repopulating the cache on a miss.
func (p *Pool) conversationHistory(ctx context.Context, conversationID string) ([]models.ChatTurn, error) {
	if history, ok := p.cache.ConversationHistory(ctx, conversationID); ok {
		return history, nil
	}

	messages, err := p.store.MessagesByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}

	history := make([]models.ChatTurn, 0, len(messages))
	for _, m := range messages {
		role := "assistant"
		if m.MessageType == "user" {
			role = "user"
		}
		history = append(history, models.ChatTurn{Role: role, Content: m.Content})
	}

	p.cache.SetConversationHistory(ctx, conversationID, history)
	return history, nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.AIJob, reply string) {
	p.jobs.MarkCompleted(ctx, job)

	event := &models.DeliveryEvent{
		ConversationID: job.ConversationID,
		Sender:         "ai",
		Content:        reply,
		MessageType:    "ai",
		Timestamp:      time.Now().UTC(),
		JobID:          job.ID,
	}
	// Delivery is decoupled and best-effort: the reply is already
	// persisted, so a publish failure is not a job failure.
	if err := p.events.PublishDelivery(ctx, event); err != nil {
		log.Printf("worker: failed to publish delivery for job %s: %v", job.ID, err)
	}

	log.Printf("worker: job %s completed", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.AIJob, jobErr error) {
	if job.Attempt < p.jobs.Policy().MaxAttempts {
		log.Printf("worker: job %s failed (attempt %d): %v, retrying", job.ID, job.Attempt, jobErr)
		if err := p.jobs.ScheduleRetry(ctx, job); err != nil {
			log.Printf("worker: failed to schedule retry for job %s: %v", job.ID, err)
		}
		return
	}

	log.Printf("worker: job %s failed permanently: %v", job.ID, jobErr)
	p.jobs.MarkFailed(ctx, job, jobErr)

	event := &models.DeliveryEvent{
		ConversationID: job.ConversationID,
		Sender:         "ai",
		Content:        "The assistant could not generate a reply. Please try again.",
		MessageType:    "error",
		Timestamp:      time.Now().UTC(),
		JobID:          job.ID,
	}
	if err := p.events.PublishDelivery(ctx, event); err != nil {
		log.Printf("worker: failed to publish failure event for job %s: %v", job.ID, err)
	}
}
