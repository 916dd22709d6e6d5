package insurance

import (
	"context"
	"fmt"
)

// Notifications serves the customer inbox. Records are created by the
// other services; this one only reads and marks them.
type Notifications struct {
	deps
}

// NewNotifications constructs a Notifications service.
func NewNotifications(store TxStore, opts ...Option) *Notifications {
	return &Notifications{deps: newDeps(store, opts)}
}

// Send records a general notification for a customer. Staff only.
func (n *Notifications) Send(ctx context.Context, caller Caller, customerID, title, message string) error {
	if err := requireStaff(caller); err != nil {
		return err
	}
	if _, err := n.store.GetCustomer(ctx, customerID); err != nil {
		return lookupErr("customer", customerID, err)
	}
	ve := &ValidationError{}
	if title == "" {
		ve.Add("title", title, "is required")
	}
	if message == "" {
		ve.Add("message", message, "is required")
	}
	if err := ve.OrNil(); err != nil {
		return err
	}
	n.notify(ctx, Notification{CustomerID: customerID, Type: NotifyGeneral, Title: title, Message: message})
	return nil
}

// List pages through a customer's notifications, newest first.
func (n *Notifications) List(ctx context.Context, caller Caller, f NotificationFilter, q ListQuery) (Page[Notification], error) {
	q = q.Normalize()
	f.CustomerID = ScopeCustomer(caller, f.CustomerID)
	items, total, err := n.store.ListNotifications(ctx, f, q)
	if err != nil {
		return Page[Notification]{}, fmt.Errorf("list notifications: %w", err)
	}
	return newPage(items, q, total), nil
}

// MarkRead marks one notification read. Marking twice is a no-op.
func (n *Notifications) MarkRead(ctx context.Context, caller Caller, id string) (*Notification, error) {
	var out *Notification
	err := n.store.WithTx(ctx, func(tx Store) error {
		var err error
		out, err = tx.GetNotification(ctx, id)
		if err != nil {
			return lookupErr("notification", id, err)
		}
		if err := requireOwner(caller, out.CustomerID); err != nil {
			return err
		}
		if out.IsRead {
			return nil
		}
		now := n.clock()
		if err := tx.MarkNotificationRead(ctx, id, now); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
		out.IsRead = true
		out.ReadAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAllRead marks every unread notification of the caller read.
func (n *Notifications) MarkAllRead(ctx context.Context, caller Caller, customerID string) (int, error) {
	customerID = ScopeCustomer(caller, customerID)
	if err := requireOwner(caller, customerID); err != nil {
		return 0, err
	}
	if customerID == "" {
		ve := &ValidationError{}
		ve.Add("customerId", customerID, "is required")
		return 0, ve
	}
	count, err := n.store.MarkAllNotificationsRead(ctx, customerID, n.clock())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return count, nil
}

// UnreadCount returns the number of unread notifications of a customer.
func (n *Notifications) UnreadCount(ctx context.Context, caller Caller, customerID string) (int, error) {
	customerID = ScopeCustomer(caller, customerID)
	if err := requireOwner(caller, customerID); err != nil {
		return 0, err
	}
	return n.store.CountUnread(ctx, customerID)
}
