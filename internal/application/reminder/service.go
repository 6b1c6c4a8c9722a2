// Package reminder runs the daily deadline scan and turns due milestones
// into reminder events and emails.
package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	domainuser "github.com/dealdeskhq/dealdesk/internal/domain/user"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/email"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// EventPublisher is the slice of the Kafka producer the scan needs.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// ScanReport summarizes one reminder scan.
type ScanReport struct {
	StartedAt    time.Time                  `json:"started_at"`
	UsersScanned int                        `json:"users_scanned"`
	DueReminders []kafka.ReminderDuePayload `json:"due_reminders"`
	Published    int                        `json:"published"`
	Issues       []domaincontract.Issue     `json:"issues,omitempty"`
	Errors       []string                   `json:"errors,omitempty"`
}

// SendResult is the per-recipient outcome of a bulk send.
type SendResult struct {
	To    string `json:"to"`
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// Service drives the reminder pipeline.
type Service interface {
	// Scan finds every reminder due today across all users with live
	// contracts. When dryRun is false each due reminder is published to
	// the reminder queue.
	Scan(ctx context.Context, dryRun bool) (*ScanReport, error)

	// GetSettings returns a user's reminder offsets, defaults included.
	GetSettings(ctx context.Context, userID common.UserID) (*domaincontract.ReminderSettings, error)

	// UpdateSettings validates and stores per-user reminder offsets.
	UpdateSettings(ctx context.Context, settings *domaincontract.ReminderSettings) error

	// HandleReminderDue delivers one reminder email. Called by the worker
	// for each reminder.due event.
	HandleReminderDue(ctx context.Context, payload kafka.ReminderDuePayload) error

	// SendBulk delivers a batch of messages, returning per-item results
	// instead of failing the whole batch on the first bad address.
	SendBulk(ctx context.Context, messages []email.Message) []SendResult

	// SendClientTimelines composes and delivers a deadline-timeline email
	// to the represented client of every emailable active record the user
	// owns.
	SendClientTimelines(ctx context.Context, ownerID common.UserID) ([]SendResult, error)
}

type service struct {
	userRepo     domainuser.Repository
	contractRepo domaincontract.Repository
	settingsRepo domaincontract.ReminderSettingsRepository
	publisher    EventPublisher
	sender       email.Sender
	logger       logging.Logger
	metrics      *metrics.Metrics
	batchSize    int
}

// NewService wires the reminder service. m may be nil in tests; batchSize
// bounds how many emails one bulk call hands to the provider before
// yielding.
func NewService(
	userRepo domainuser.Repository,
	contractRepo domaincontract.Repository,
	settingsRepo domaincontract.ReminderSettingsRepository,
	publisher EventPublisher,
	sender email.Sender,
	log logging.Logger,
	m *metrics.Metrics,
	batchSize int,
) Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &service{
		userRepo:     userRepo,
		contractRepo: contractRepo,
		settingsRepo: settingsRepo,
		publisher:    publisher,
		sender:       sender,
		logger:       log,
		metrics:      m,
		batchSize:    batchSize,
	}
}

func (s *service) Scan(ctx context.Context, dryRun bool) (*ScanReport, error) {
	report := &ScanReport{StartedAt: time.Now().UTC()}

	users, err := s.userRepo.ListWithReminderContracts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range users {
		u := &users[i]
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, errors.ErrCodeTimeout, "reminder scan cancelled")
		}

		due, issues, err := s.scanUser(ctx, u)
		report.UsersScanned++
		if s.metrics != nil {
			s.metrics.RemindersScannedTotal.Inc()
		}
		report.Issues = append(report.Issues, issues...)
		if err != nil {
			// One user's failure must not sink the whole scan.
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", u.ID, err))
			s.logger.Error("reminder scan failed for user",
				logging.String("user_id", string(u.ID)),
				logging.Err(err),
			)
			continue
		}
		report.DueReminders = append(report.DueReminders, due...)

		if dryRun {
			continue
		}
		for _, payload := range due {
			if err := s.publisher.Publish(ctx, kafka.TopicReminderDue, string(payload.ContractID), payload); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: publish: %v", payload.ContractID, err))
				continue
			}
			report.Published++
		}
	}

	if s.metrics != nil {
		s.metrics.ReminderScanDuration.Observe(time.Since(report.StartedAt).Seconds())
	}
	s.logger.Info("reminder scan complete",
		logging.Int("users", report.UsersScanned),
		logging.Int("due", len(report.DueReminders)),
		logging.Int("published", report.Published),
		logging.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// scanUser resolves the user's pipeline and collects reminders due today in
// the user's own timezone.
func (s *service) scanUser(ctx context.Context, u *domainuser.User) ([]kafka.ReminderDuePayload, []domaincontract.Issue, error) {
	contracts, err := s.contractRepo.ListByOwner(ctx, u.ID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, nil, err
	}
	settings, err := s.settingsRepo.Get(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}

	// Eligibility is a pure predicate over projected events and offsets.
	// The reminder goes to the agent, so a missing client email on the
	// contract never suppresses it.
	actives, issues := domaincontract.Resolve(contracts)
	events := domaincontract.ProjectAll(actives)
	today := common.DateOf(time.Now().In(u.Location()))

	var due []kafka.ReminderDuePayload
	for _, ev := range domaincontract.DueReminders(events, today, *settings) {
		due = append(due, kafka.ReminderDuePayload{
			OwnerID:         ev.OwnerID,
			ContractID:      ev.ContractID,
			Milestone:       string(ev.Milestone),
			Date:            ev.Date,
			DaysUntil:       ev.DaysUntil(today),
			PropertyAddress: ev.PropertyAddress,
		})
	}
	return due, issues, nil
}

func (s *service) GetSettings(ctx context.Context, userID common.UserID) (*domaincontract.ReminderSettings, error) {
	return s.settingsRepo.Get(ctx, userID)
}

func (s *service) UpdateSettings(ctx context.Context, settings *domaincontract.ReminderSettings) error {
	if settings == nil {
		return errors.InvalidParam("reminder settings are required")
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.settingsRepo.Put(ctx, settings)
}

func (s *service) HandleReminderDue(ctx context.Context, payload kafka.ReminderDuePayload) error {
	u, err := s.userRepo.GetByID(ctx, payload.OwnerID)
	if err != nil {
		return err
	}
	msg := ComposeReminderEmail(u.Email, payload)
	if err := s.sender.Send(ctx, msg); err != nil {
		if s.metrics != nil {
			s.metrics.RemindersSentTotal.WithLabelValues("failed").Inc()
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.RemindersSentTotal.WithLabelValues("sent").Inc()
	}
	s.logger.Info("reminder email sent",
		logging.String("user_id", string(u.ID)),
		logging.String("contract_id", string(payload.ContractID)),
		logging.String("milestone", payload.Milestone),
	)
	return nil
}

func (s *service) SendBulk(ctx context.Context, messages []email.Message) []SendResult {
	results := make([]SendResult, 0, len(messages))
	for i, msg := range messages {
		if i > 0 && i%s.batchSize == 0 {
			select {
			case <-ctx.Done():
				for _, rest := range messages[i:] {
					results = append(results, SendResult{To: rest.To, Error: ctx.Err().Error()})
				}
				return results
			default:
			}
		}
		result := SendResult{To: msg.To, Sent: true}
		if err := s.sender.Send(ctx, msg); err != nil {
			result.Sent = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (s *service) SendClientTimelines(ctx context.Context, ownerID common.UserID) ([]SendResult, error) {
	contracts, err := s.contractRepo.ListByOwner(ctx, ownerID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	actives, _ := domaincontract.Resolve(contracts)
	recs := domaincontract.Emailable(actives)
	if len(recs) == 0 {
		return nil, errors.New(errors.ErrCodeNoEmailableContracts,
			"no active contracts with a client email address")
	}

	today := common.Today()
	messages := make([]email.Message, 0, len(recs))
	for _, rec := range recs {
		messages = append(messages, ComposeTimelineEmail(rec, today))
	}
	results := s.SendBulk(ctx, messages)

	sent := 0
	for _, r := range results {
		if r.Sent {
			sent++
		}
	}
	s.logger.Info("client timeline emails sent",
		logging.String("owner_id", string(ownerID)),
		logging.Int("sent", sent),
		logging.Int("failed", len(results)-sent),
	)
	return results, nil
}

// ComposeTimelineEmail renders the deadline timeline of one active record
// for the represented client.
func ComposeTimelineEmail(rec domaincontract.ActiveRecord, today common.Date) email.Message {
	events := domaincontract.Project(rec)
	subject := fmt.Sprintf("Transaction timeline - %s", rec.Contract.PropertyAddress)

	var html, text strings.Builder
	fmt.Fprintf(&html, "<p>Upcoming dates for <strong>%s</strong>:</p><ul>", rec.Contract.PropertyAddress)
	fmt.Fprintf(&text, "Upcoming dates for %s:\n\n", rec.Contract.PropertyAddress)
	for _, ev := range events {
		line := fmt.Sprintf("%s: %s", ev.Milestone.Label(), ev.Date)
		switch {
		case ev.Completed:
			line += " (done)"
		case ev.Overdue(today):
			line += " (past due)"
		}
		fmt.Fprintf(&html, "<li>%s</li>", line)
		fmt.Fprintf(&text, "- %s\n", line)
	}
	html.WriteString("</ul>")

	return email.Message{
		To:      rec.Contract.RepresentedEmail(),
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}
}

// ComposeReminderEmail renders the reminder notification for one milestone.
func ComposeReminderEmail(to string, payload kafka.ReminderDuePayload) email.Message {
	m, err := domaincontract.ParseMilestone(payload.Milestone)
	label := payload.Milestone
	if err == nil {
		label = m.Label()
	}

	when := fmt.Sprintf("in %d days", payload.DaysUntil)
	if payload.DaysUntil == 1 {
		when = "tomorrow"
	}
	subject := fmt.Sprintf("%s %s - %s", label, when, payload.PropertyAddress)

	var html strings.Builder
	fmt.Fprintf(&html, "<p>The <strong>%s</strong> deadline for <strong>%s</strong> is %s, on %s.</p>",
		label, payload.PropertyAddress, when, payload.Date)
	html.WriteString("<p>Open DealDesk to review the transaction or mark the milestone complete.</p>")

	text := fmt.Sprintf("The %s deadline for %s is %s, on %s.\n\nOpen DealDesk to review the transaction.",
		label, payload.PropertyAddress, when, payload.Date)

	return email.Message{
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text,
	}
}
