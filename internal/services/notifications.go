package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/coverplace/api/internal/domain"
)

// ErrNotificationDispatchFailed wraps transport failures from the dispatcher.
// Recipient resolution failures are never fatal; dispatch failures are.
var ErrNotificationDispatchFailed = errors.New("notification: dispatch failed")

const messageIDPrefix = "msg_"

// notifier composes workflow notifications and hands them to the dispatcher.
// It is shared by the deal and feedback services.
type notifier struct {
	dispatcher NotificationDispatcher
	directory  CompanyDirectory
	clock      func() time.Time
	newID      func(prefix string) string
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// resolveRecipients resolves each company's employees into recipients,
// recording per-company failures instead of aborting.
func (n *notifier) resolveRecipients(ctx context.Context, companyIDs []string) []RecipientResolution {
	resolutions := make([]RecipientResolution, 0, len(companyIDs))
	for _, companyID := range companyIDs {
		employees, err := n.directory.ResolveEmployees(ctx, companyID)
		if err != nil {
			n.log(ctx, "notification.recipients.skipped", map[string]any{
				"companyId": companyID,
				"error":     err.Error(),
			})
			resolutions = append(resolutions, RecipientResolution{CompanyID: companyID, Err: err})
			continue
		}
		resolutions = append(resolutions, RecipientResolution{
			CompanyID:  companyID,
			Recipients: domain.RecipientsFromEmployees(employees),
		})
	}
	return resolutions
}

// send dispatches one notification to the union of resolved recipients. An
// empty recipient set is a no-op; a dispatcher failure is the caller's error.
func (n *notifier) send(ctx context.Context, notificationType NotificationType, resolutions []RecipientResolution, data map[string]string) error {
	if n.dispatcher == nil {
		return nil
	}

	var recipients []Recipient
	for _, resolution := range resolutions {
		if resolution.Err != nil {
			continue
		}
		recipients = append(recipients, resolution.Recipients...)
	}
	if len(recipients) == 0 {
		n.log(ctx, "notification.skipped.no_recipients", map[string]any{
			"type": string(notificationType),
		})
		return nil
	}

	message := NotificationMessage{
		MessageID:  n.newID(messageIDPrefix),
		Type:       notificationType,
		Recipients: recipients,
		Data:       data,
		QueuedAt:   n.clock(),
	}

	publishedID, err := n.dispatcher.DispatchNotification(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationDispatchFailed, err)
	}

	n.log(ctx, "notification.dispatched", map[string]any{
		"type":        string(notificationType),
		"messageId":   message.MessageID,
		"publishedId": publishedID,
		"recipients":  len(recipients),
	})
	return nil
}

func (n *notifier) log(ctx context.Context, event string, fields map[string]any) {
	if n.logger != nil {
		n.logger(ctx, event, fields)
	}
}

func notificationData(submission DealSubmission, extra map[string]string) map[string]string {
	data := map[string]string{
		domain.NotificationKeyDealID:        submission.ID,
		domain.NotificationKeyProjectName:   submission.Name,
		domain.NotificationKeyBrokerCompany: submission.BrokerName,
	}
	for key, value := range extra {
		data[key] = value
	}
	return data
}
