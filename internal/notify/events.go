package notify

import "github.com/wardflow/tanksentry/pkg/models"

// TopicCreated returns the bus topic the watcher publishes when a new
// record appears in a category. Payload: models.NotificationRecord.
func TopicCreated(c models.Category) string {
	return "notify." + string(c) + ".created"
}
