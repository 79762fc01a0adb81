package constants

import "time"

// Session and context keys
const (
	SessionCookieName = "family_task_session"
	ContextKeyUserID  = "user_id"
	ContextKeySession = "session_context"
	ContextKeyTask    = "task"
	MinPasswordLength = 8
)

// Invite codes
const (
	InviteCodeLength    = 8
	InviteCodeGroupSize = 4
)

// Request keys naming the family a request acts in
const (
	HeaderFamilyID = "X-Family-ID"
	QueryFamilyID  = "family_id"
)

// Remote collections
const (
	CollectionTasks         = "tasks"
	CollectionApprovals     = "approvalRequests"
	CollectionHistory       = "history"
	CollectionNotifications = "notifications"
)

// Sync defaults
const (
	DefaultMaxSyncRetries  = 5
	FailureBufferSize      = 32
	DefaultRetentionDays   = 30
	AggregatorUpdateBuffer = 16
	StreamHeartbeat        = 30 * time.Second
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)
