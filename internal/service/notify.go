// Package service holds the editorial workflow and the background
// workers. Handlers stay thin and call into it for anything that changes
// submission state.
package service

import (
	"fmt"

	"github.com/iliyamo/journal-portal/internal/model"
	"github.com/iliyamo/journal-portal/internal/queue"
)

// Notice describes one notification sent to a set of users.
type Notice struct {
	Type    model.NotificationType
	Subject string
	Message string
	Path    string
	Data    model.NotificationData
}

// BuildNotices returns the in-app notification and outbox mail event for
// every recipient. Duplicated recipients are notified once.
func BuildNotices(n Notice, to ...model.User) ([]model.Notification, []model.OutboxEvent, error) {
	seen := make(map[uint64]bool, len(to))
	var (
		ns  []model.Notification
		evs []model.OutboxEvent
	)
	for _, u := range to {
		if u.ID == 0 || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		note := model.Notification{RecipientID: u.ID, Type: n.Type, Message: n.Message, Data: n.Data}
		ns = append(ns, note)
		ev, ok, err := queue.NotificationEvent(note, u, n.Subject, n.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("build %s event: %w", n.Type, err)
		}
		if ok {
			evs = append(evs, ev)
		}
	}
	return ns, evs, nil
}

func submissionPath(id uint64) string { return fmt.Sprintf("/submissions/%d", id) }
