package models

import (
	"encoding/json"
	"fmt"
)

// Current schema versions of the documents written to the remote store.
const (
	TaskSchemaVersion         = 1
	ApprovalSchemaVersion     = 1
	HistorySchemaVersion      = 1
	NotificationSchemaVersion = 1
)

// ToDocument encodes the task for the remote store. Optional fields are typed
// pointers so the sanitizer can strip the unset ones.
func (t Task) ToDocument() map[string]any {
	subtasks := make([]any, 0, len(t.Subtasks))
	for _, s := range t.Subtasks {
		subtasks = append(subtasks, map[string]any{
			"id":        s.ID,
			"title":     s.Title,
			"completed": s.Completed,
			"order":     s.Order,
			"dueDate":   s.DueDate,
			"dueTime":   s.DueTime,
		})
	}

	return map[string]any{
		"id":               t.ID,
		"title":            t.Title,
		"description":      t.Description,
		"category":         t.Category,
		"priority":         string(t.Priority),
		"status":           string(t.Status),
		"date":             t.Date,
		"time":             t.Time,
		"createdBy":        t.CreatedBy,
		"assignedTo":       t.AssignedTo,
		"familyId":         t.FamilyID,
		"private":          t.Private,
		"subtasks":         subtasks,
		"requiresApproval": t.RequiresApproval,
		"approvalStatus":   t.ApprovalStatus,
		"approvedBy":       t.ApprovedBy,
		"approvedAt":       t.ApprovedAt,
		"completedBy":      t.CompletedBy,
		"completedAt":      t.CompletedAt,
		"postponeCount":    t.PostponeCount,
		"originalDate":     t.OriginalDate,
		"repeat":           t.Repeat.toDocument(),
		"createdAt":        t.CreatedAt,
		"updatedAt":        t.UpdatedAt,
		"editedAt":         t.EditedAt,
		"schemaVersion":    TaskSchemaVersion,
	}
}

func (r RepeatConfig) toDocument() map[string]any {
	days := make([]int64, 0, len(r.DaysOfWeek))
	for _, d := range r.DaysOfWeek {
		days = append(days, int64(d))
	}
	doc := map[string]any{
		"type":     string(r.Type),
		"interval": r.Interval,
		"endDate":  r.EndDate,
	}
	if len(days) > 0 {
		doc["daysOfWeek"] = days
	}
	return doc
}

// MigrateTaskDocument upgrades a stored task document to TaskSchemaVersion.
// The input map is not modified.
func MigrateTaskDocument(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+4)
	for k, v := range data {
		out[k] = v
	}
	if schemaVersion(out) >= TaskSchemaVersion {
		return out
	}

	if _, ok := out["private"]; !ok {
		familyID, _ := out["familyId"].(string)
		out["private"] = familyID == ""
	}
	setDefault(out, "postponeCount", 0)
	setDefault(out, "priority", string(PriorityMedium))
	setDefault(out, "status", string(TaskStatusPending))
	setDefault(out, "category", DefaultCategory)
	setDefault(out, "subtasks", []any{})
	setDefault(out, "repeat", map[string]any{"type": string(RepeatNone), "interval": 1})
	out["schemaVersion"] = TaskSchemaVersion
	return out
}

// DecodeTask reads a task document, migrating older schemas first.
func DecodeTask(id string, data map[string]any) (Task, error) {
	var task Task
	if err := decodeDocument(id, MigrateTaskDocument(data), &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task %s: %w", id, err)
	}
	if task.Subtasks == nil {
		task.Subtasks = []Subtask{}
	}
	task.Repeat = task.Repeat.Normalize()
	return task, nil
}

func (a ApprovalRequest) ToDocument() map[string]any {
	return map[string]any{
		"id":            a.ID,
		"taskId":        a.TaskID,
		"taskTitle":     a.TaskTitle,
		"requesterId":   a.RequesterID,
		"requesterName": a.RequesterName,
		"familyId":      a.FamilyID,
		"status":        string(a.Status),
		"reviewerId":    a.ReviewerID,
		"reviewerName":  a.ReviewerName,
		"comment":       a.Comment,
		"reviewedAt":    a.ReviewedAt,
		"createdAt":     a.CreatedAt,
		"schemaVersion": ApprovalSchemaVersion,
	}
}

func DecodeApproval(id string, data map[string]any) (ApprovalRequest, error) {
	var approval ApprovalRequest
	if err := decodeDocument(id, data, &approval); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to decode approval %s: %w", id, err)
	}
	if approval.Status == "" {
		approval.Status = ApprovalPending
	}
	return approval, nil
}

func (h HistoryItem) ToDocument() map[string]any {
	return map[string]any{
		"id":            h.ID,
		"action":        string(h.Action),
		"timestamp":     h.Timestamp,
		"actorId":       h.ActorID,
		"actorName":     h.ActorName,
		"taskId":        h.TaskID,
		"taskTitle":     h.TaskTitle,
		"familyId":      h.FamilyID,
		"details":       h.Details,
		"schemaVersion": HistorySchemaVersion,
	}
}

func DecodeHistoryItem(id string, data map[string]any) (HistoryItem, error) {
	var item HistoryItem
	if err := decodeDocument(id, data, &item); err != nil {
		return HistoryItem{}, fmt.Errorf("failed to decode history item %s: %w", id, err)
	}
	return item, nil
}

func (n Notification) ToDocument() map[string]any {
	return map[string]any{
		"id":            n.ID,
		"recipientId":   n.RecipientID,
		"title":         n.Title,
		"body":          n.Body,
		"taskId":        n.TaskID,
		"approvalId":    n.ApprovalID,
		"read":          n.Read,
		"createdAt":     n.CreatedAt,
		"schemaVersion": NotificationSchemaVersion,
	}
}

func DecodeNotification(id string, data map[string]any) (Notification, error) {
	var n Notification
	if err := decodeDocument(id, data, &n); err != nil {
		return Notification{}, fmt.Errorf("failed to decode notification %s: %w", id, err)
	}
	return n, nil
}

// decodeDocument maps a loosely typed document onto v through its JSON field names.
// Timestamps survive as RFC 3339 strings or time.Time values alike.
func decodeDocument(id string, data map[string]any, v any) error {
	doc := make(map[string]any, len(data)+1)
	for k, val := range data {
		doc[k] = val
	}
	if id != "" {
		doc["id"] = id
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func schemaVersion(data map[string]any) int {
	switch v := data["schemaVersion"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func setDefault(data map[string]any, key string, value any) {
	if v, ok := data[key]; !ok || v == nil {
		data[key] = value
	}
}
