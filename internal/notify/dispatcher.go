package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/safereport/safereport/internal/database"

	"gorm.io/gorm"
)

// Mailer sends an email to a single address
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Texter sends a text message to a single mobile number
type Texter interface {
	Send(ctx context.Context, to, body string) error
}

// StoreDispatcher records each delivery as a Notification row and then
// delivers it over the channels the delivery selects. Only the row insert
// can fail the dispatch; transport errors are logged per channel and
// swallowed, because delivery is best-effort once the notification is
// recorded.
type StoreDispatcher struct {
	db     *gorm.DB
	mailer Mailer
	texter Texter
}

// NewStoreDispatcher creates a dispatcher. mailer and texter may be nil when
// the corresponding transport is not configured; deliveries over a missing
// transport are logged and skipped.
func NewStoreDispatcher(db *gorm.DB, mailer Mailer, texter Texter) *StoreDispatcher {
	return &StoreDispatcher{
		db:     db,
		mailer: mailer,
		texter: texter,
	}
}

// Dispatch records the notification and sends it over the selected channels
func (d *StoreDispatcher) Dispatch(ctx context.Context, delivery Delivery) error {
	notification := &database.Notification{
		UUID:         uuid.NewString(),
		UserID:       delivery.User.ID,
		Title:        delivery.Title,
		Body:         delivery.Body,
		Kind:         delivery.Kind,
		ReferenceIDs: delivery.ReferenceIDs,
		Metadata:     delivery.Metadata,
	}
	if err := d.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	if delivery.Channel == database.ChannelEmail || delivery.Channel == database.ChannelBoth {
		d.sendEmail(ctx, delivery)
	}
	if delivery.Channel == database.ChannelMobile || delivery.Channel == database.ChannelBoth {
		d.sendText(ctx, delivery)
	}

	return nil
}

func (d *StoreDispatcher) sendEmail(ctx context.Context, delivery Delivery) {
	if d.mailer == nil {
		log.Printf("notify: email transport not configured, skipping email to user %d", delivery.User.ID)
		return
	}
	if delivery.User.Email == "" {
		log.Printf("notify: user %d has no email address, skipping email", delivery.User.ID)
		return
	}
	if err := d.mailer.Send(ctx, delivery.User.Email, delivery.Title, delivery.Body); err != nil {
		log.Printf("notify: failed to email user %d: %v", delivery.User.ID, err)
	}
}

func (d *StoreDispatcher) sendText(ctx context.Context, delivery Delivery) {
	if d.texter == nil {
		log.Printf("notify: SMS transport not configured, skipping text to user %d", delivery.User.ID)
		return
	}
	if !ValidMobileNumber(delivery.User.Mobile) {
		log.Printf("notify: user %d has no valid mobile number, skipping text", delivery.User.ID)
		return
	}
	if err := d.texter.Send(ctx, delivery.User.Mobile, delivery.Body); err != nil {
		log.Printf("notify: failed to text user %d: %v", delivery.User.ID, err)
	}
}

// MarkRead flips the read flag of one notification for its recipient. The
// read flag is the only mutable field on a notification.
func MarkRead(db *gorm.DB, notificationUUID string, userID uint) error {
	result := db.Model(&database.Notification{}).
		Where("uuid = ? AND user_id = ?", notificationUUID, userID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
