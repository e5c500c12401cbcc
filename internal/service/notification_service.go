package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-identity-api/internal/models"
	"github.com/noah-isme/sma-identity-api/pkg/jobs"
	"github.com/noah-isme/sma-identity-api/pkg/mail"
)

const credentialJobType = "credential_notice"

// CredentialNotice tells a newly provisioned person how to sign in.
// Password is empty when the administrator supplied one.
type CredentialNotice struct {
	Email    string
	Name     string
	Role     models.UserRole
	LoginID  string
	Password string
}

// NotificationService delivers credential e-mails in the background.
// Delivery is best-effort: failures are logged and counted, never returned.
type NotificationService struct {
	queue   *jobs.Queue
	sender  mail.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs the service and its delivery queue.
func NewNotificationService(sender mail.Sender, metrics *MetricsService, logger *zap.Logger, queueCfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{sender: sender, metrics: metrics, logger: logger}
	queueCfg.Logger = logger
	queueCfg.OnDrop = func(job jobs.Job, err error) {
		s.metrics.RecordNotificationFailure("deliver")
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, queueCfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyCredentials queues one e-mail per notice and never waits for the
// mail provider; notices that do not fit in the buffer are dropped and counted.
func (s *NotificationService) NotifyCredentials(_ context.Context, notices ...CredentialNotice) {
	for _, notice := range notices {
		if strings.TrimSpace(notice.Email) == "" {
			continue
		}
		job := jobs.Job{ID: uuid.NewString(), Type: credentialJobType, Payload: notice}
		if err := s.queue.Enqueue(job); err != nil {
			s.metrics.RecordNotificationFailure("enqueue")
			s.logger.Warn("credential notice not queued",
				zap.String("login_id", notice.LoginID),
				zap.String("role", string(notice.Role)),
				zap.Error(err),
			)
		}
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(CredentialNotice)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.sender.Send(ctx, credentialMessage(notice))
}

func credentialMessage(n CredentialNotice) mail.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello %s,\n\n", n.Name)
	fmt.Fprintf(&body, "An account with role %s has been created for you.\n", n.Role)
	fmt.Fprintf(&body, "Login ID: %s\n", n.LoginID)
	if n.Password != "" {
		fmt.Fprintf(&body, "Temporary password: %s\n", n.Password)
		body.WriteString("Please change it after your first sign-in.\n")
	}
	return mail.Message{
		To:      n.Email,
		ToName:  n.Name,
		Subject: "Your account credentials",
		Body:    body.String(),
	}
}
