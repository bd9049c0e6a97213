package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-directory/internal/accounts"
	jobmetrics "github.com/odyssey-erp/odyssey-directory/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSignupDecision mails an applicant the outcome of their signup.
	TaskSignupDecision = "directory:signup_decision"

	signupDecisionJob = "signup_decision"
)

// NewSignupDecisionTask constructs an Asynq task for a signup decision.
func NewSignupDecisionTask(decision accounts.Decision) (*asynq.Task, error) {
	if decision.UserID <= 0 || strings.TrimSpace(decision.Email) == "" {
		return nil, fmt.Errorf("jobs: signup decision requires user and email")
	}
	data, err := json.Marshal(decision)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSignupDecision, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// SignupDecisionJob delivers signup decisions through a Mailer.
type SignupDecisionJob struct {
	mailer  Mailer
	from    string
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSignupDecisionJob wires the job dependencies.
func NewSignupDecisionJob(mailer Mailer, from string, logger *slog.Logger, metrics *jobmetrics.Metrics) *SignupDecisionJob {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &SignupDecisionJob{mailer: mailer, from: from, logger: logger, metrics: metrics}
}

// Handle processes TaskSignupDecision tasks.
func (j *SignupDecisionJob) Handle(ctx context.Context, t *asynq.Task) error {
	var decision accounts.Decision
	if err := json.Unmarshal(t.Payload(), &decision); err != nil {
		j.logger.Error("decode signup decision", slog.Any("error", err))
		return fmt.Errorf("decode signup decision: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track(signupDecisionJob)
	subject, body := composeDecision(decision)
	if err := j.mailer.Send(ctx, j.from, decision.Email, subject, body); err != nil {
		j.logger.Warn("send signup decision", slog.Int64("user_id", decision.UserID), slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.NotificationSent(decision.Approved)
	j.logger.Info("signup decision delivered", slog.Int64("user_id", decision.UserID), slog.Bool("approved", decision.Approved))
	return tracker.End(nil)
}

func composeDecision(d accounts.Decision) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", d.Name)
	if d.Approved {
		fmt.Fprintf(&b, "Your signup has been approved. You joined the directory as %s.\n", d.Grade.Label())
		return "Your signup was approved", b.String()
	}
	b.WriteString("Your signup has been refused.\n")
	if d.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", d.Reason)
	}
	return "Your signup was refused", b.String()
}
