package enums

import "fmt"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeOfferReceived     NotificationType = "offer_received"
	NotificationTypeOfferAccepted     NotificationType = "offer_accepted"
	NotificationTypeOfferRejected     NotificationType = "offer_rejected"
	NotificationTypeOfferCountered    NotificationType = "offer_countered"
	NotificationTypeOfferExpired      NotificationType = "offer_expired"
	NotificationTypeSaleCompleted     NotificationType = "sale_completed"
	NotificationTypePurchaseCompleted NotificationType = "purchase_completed"
	NotificationTypeRefundIssued      NotificationType = "refund_issued"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOfferReceived,
	NotificationTypeOfferAccepted,
	NotificationTypeOfferRejected,
	NotificationTypeOfferCountered,
	NotificationTypeOfferExpired,
	NotificationTypeSaleCompleted,
	NotificationTypePurchaseCompleted,
	NotificationTypeRefundIssued,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
