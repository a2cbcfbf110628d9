// Package notify posts Discord-style webhook messages about scrapes,
// searches and failures.
//
// Messages are never sent inline. Callers enqueue a notify_webhook job and
// a background Worker delivers it, retrying with backoff. Webhook URLs stay
// in configuration; jobs only name the channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/semester"
	"github.com/uqmarks/uqmarks/internal/storage"
)

const JobType = "notify_webhook"

const (
	defaultUsername = "UQmarks"
	quizUsername    = "UQmarks - QUIZ"
)

// Channel selects which webhook a message goes to.
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelError Channel = "error"
)

// Message is the webhook body.
type Message struct {
	Content  string  `json:"content"`
	Username string  `json:"username"`
	Embeds   []Embed `json:"embeds"`
}

type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type jobPayload struct {
	Channel Channel `json:"channel"`
	Message Message `json:"message"`
}

// Config holds the webhook settings shared by Queue and Worker.
type Config struct {
	Enabled         bool
	WebhookURL      string
	ErrorWebhookURL string
	// ManagerID is mentioned in error messages when set.
	ManagerID string
}

func (c Config) url(ch Channel) string {
	if ch == ChannelError {
		return c.ErrorWebhookURL
	}
	return c.WebhookURL
}

// JobQueue accepts jobs.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Queue turns domain events into webhook jobs. Nothing is enqueued when
// notifications are disabled or the channel has no URL.
type Queue struct {
	jobs   JobQueue
	cfg    Config
	logger *slog.Logger
}

func NewQueue(jobs JobQueue, cfg Config) *Queue {
	return &Queue{jobs: jobs, cfg: cfg, logger: slog.Default()}
}

// CourseScraped announces a newly stored course.
func (q *Queue) CourseScraped(ctx context.Context, k course.Key) error {
	return q.enqueue(ctx, ChannelLog, Message{
		Username: defaultUsername,
		Embeds: []Embed{{
			Title:       k.Code + " - NEW CODE",
			Description: semester.Label(k.Year, k.Semester),
		}},
	})
}

// SearchLogged announces a search.
func (q *Queue) SearchLogged(ctx context.Context, k course.Key) error {
	return q.enqueue(ctx, ChannelLog, Message{
		Username: defaultUsername,
		Embeds: []Embed{{
			Title:       k.Code,
			Description: semester.Label(k.Year, k.Semester),
		}},
	})
}

// QuizOpened announces a visit to the quiz page.
func (q *Queue) QuizOpened(ctx context.Context) error {
	return q.enqueue(ctx, ChannelLog, Message{
		Username: quizUsername,
		Embeds: []Embed{{
			Title:       "User opened the quiz page",
			Description: "Quiz was used",
		}},
	})
}

// ScrapeFailed reports an upstream failure on the error channel.
func (q *Queue) ScrapeFailed(ctx context.Context, k course.Key, cause error) error {
	content := "An error has occurred!"
	if q.cfg.ManagerID != "" {
		content = fmt.Sprintf("<@%s> %s", q.cfg.ManagerID, content)
	}
	return q.enqueue(ctx, ChannelError, Message{
		Content:  content,
		Username: defaultUsername,
		Embeds: []Embed{{
			Title:       fmt.Sprintf("Input: %s | %d | %d", k.Code, k.Semester, k.Year),
			Description: cause.Error(),
		}},
	})
}

func (q *Queue) enqueue(ctx context.Context, ch Channel, msg Message) error {
	if !q.cfg.Enabled || q.cfg.url(ch) == "" {
		return nil
	}
	if msg.Embeds == nil {
		msg.Embeds = []Embed{}
	}
	payload, err := json.Marshal(jobPayload{Channel: ch, Message: msg})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}
	if err := q.jobs.EnqueueJob(ctx, job); err != nil {
		return fmt.Errorf("enqueueing notification: %w", err)
	}
	q.logger.Debug("notification queued", "job_id", job.ID, "channel", string(ch))
	return nil
}
