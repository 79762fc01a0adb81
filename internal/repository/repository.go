package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/family-task-sync/internal/models"
)

// ErrNotFound is returned by the task and approval repositories when no copy
// of the document exists remotely or locally.
var ErrNotFound = errors.New("document not found")

// Connectivity reports the current network state.
type Connectivity interface {
	IsOnline() bool
}

// ConnectivityFunc adapts a plain function to Connectivity.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) IsOnline() bool { return f() }

// Enqueuer accepts writes that cannot be confirmed by the remote store right now.
type Enqueuer interface {
	// Enqueue appends op to the outbox and returns the stored entry
	Enqueue(ctx context.Context, op models.PendingOperation) (models.PendingOperation, error)

	// HasPending reports whether unsent operations target the document
	HasPending(ctx context.Context, collection, documentID string) (bool, error)
}

// OutboxRepository defines the interface for pending operation storage
type OutboxRepository interface {
	// Append stores a new operation, assigning the next sequence number
	Append(ctx context.Context, op *models.PendingOperation) error

	// ListByStatus lists operations with the given status in sequence order
	ListByStatus(ctx context.Context, status models.OperationStatus) ([]models.PendingOperation, error)

	// FindByID finds an operation by ID
	FindByID(ctx context.Context, id string) (*models.PendingOperation, error)

	// Update saves retry bookkeeping for an operation
	Update(ctx context.Context, op *models.PendingOperation) error

	// Delete removes an operation
	Delete(ctx context.Context, id string) error

	// CountByStatus counts operations with the given status
	CountByStatus(ctx context.Context, status models.OperationStatus) (int64, error)

	// CountForDocument counts operations of any status that target a document
	CountForDocument(ctx context.Context, collection, documentID string) (int64, error)
}

// OfflineRepository defines the interface for the local cache of remote documents
type OfflineRepository interface {
	// SaveTask stores a task; dirty marks it as changed locally and not yet confirmed
	SaveTask(ctx context.Context, task models.Task, dirty bool) error

	// FindTask finds a cached task by ID
	FindTask(ctx context.Context, id string) (*models.Task, bool, error)

	// DeleteTask removes a cached task
	DeleteTask(ctx context.Context, id string) error

	// ListVisibleTasks lists cached tasks the session may see
	ListVisibleTasks(ctx context.Context, session models.SessionContext) ([]models.Task, error)

	// RefreshTasks caches the remote copies of the session's visible tasks and
	// drops clean rows the remote store no longer has
	RefreshTasks(ctx context.Context, session models.SessionContext, tasks []models.Task, since time.Time) error

	// ListDirtyTasks lists cached tasks with local changes the remote store has not confirmed
	ListDirtyTasks(ctx context.Context) ([]models.Task, error)

	// MarkTaskSynced clears the dirty flag after the remote store confirmed a write
	MarkTaskSynced(ctx context.Context, id string, at time.Time) error

	// SaveApproval stores an approval request
	SaveApproval(ctx context.Context, approval models.ApprovalRequest, dirty bool) error

	// FindApproval finds a cached approval request by ID
	FindApproval(ctx context.Context, id string) (*models.ApprovalRequest, bool, error)

	// ListApprovals lists cached approval requests matching the filter
	ListApprovals(ctx context.Context, filter ApprovalFilter) ([]models.ApprovalRequest, error)

	// MarkApprovalSynced clears the dirty flag of an approval request
	MarkApprovalSynced(ctx context.Context, id string) error

	// LastSync returns the epoch milliseconds of the last completed drain
	LastSync(ctx context.Context) (int64, error)

	// SetLastSync records the epoch milliseconds of a completed drain
	SetLastSync(ctx context.Context, millis int64) error

	// Snapshot returns the whole persisted local state
	Snapshot(ctx context.Context) (models.OfflineData, error)
}

// ApprovalFilter holds filtering options for listing approval requests
type ApprovalFilter struct {
	TaskID    *string
	FamilyID  *string
	Status    *models.ApprovalStatus
	DirtyOnly bool
}

// HistoryRepository defines the interface for the local audit log
type HistoryRepository interface {
	// Append stores a history item
	Append(ctx context.Context, item *models.HistoryItem) error

	// List retrieves history items, newest first, with filtering and pagination
	List(ctx context.Context, filter HistoryFilter) ([]models.HistoryItem, int64, error)

	// PruneOlderThan deletes items recorded before cutoff and returns how many were removed
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryFilter holds filtering options for listing history
type HistoryFilter struct {
	FamilyID *string
	ActorID  *string
	TaskID   *string
	Page     int
	PageSize int
}

// TaskRepository defines the interface for task persistence
type TaskRepository interface {
	// Save creates or replaces a task
	Save(ctx context.Context, task models.Task) error

	// Update replaces an existing task
	Update(ctx context.Context, task models.Task) error

	// Delete deletes a task
	Delete(ctx context.Context, id string) error

	// FindByID finds a task by ID
	FindByID(ctx context.Context, id string) (*models.Task, error)
}

// ApprovalRepository defines the interface for approval request persistence
type ApprovalRepository interface {
	// Save creates an approval request
	Save(ctx context.Context, approval models.ApprovalRequest) error

	// Update replaces an existing approval request
	Update(ctx context.Context, approval models.ApprovalRequest) error

	// FindByID finds an approval request by ID
	FindByID(ctx context.Context, id string) (*models.ApprovalRequest, error)

	// FindPendingByTask returns the pending request for a task, or nil if there is none
	FindPendingByTask(ctx context.Context, taskID string) (*models.ApprovalRequest, error)

	// ListPendingByFamily lists pending requests of a family
	ListPendingByFamily(ctx context.Context, familyID string) ([]models.ApprovalRequest, error)
}

// FamilyRepository defines the interface for family data access
type FamilyRepository interface {
	// Create creates a new family
	Create(family *models.Family) error

	// CreateWithAdmin creates a family and its first admin member in one transaction
	CreateWithAdmin(family *models.Family, member *models.FamilyMember) error

	// FindByID finds a family by ID
	FindByID(id string) (*models.Family, error)

	// FindByInviteCode finds a family by invite code
	FindByInviteCode(code string) (*models.Family, error)

	// Update updates a family
	Update(family *models.Family) error

	// AddMember adds a member to a family
	AddMember(member *models.FamilyMember) error

	// RemoveMember removes a member from a family
	RemoveMember(familyID, userID string) error

	// FindMember finds a specific family member
	FindMember(familyID, userID string) (*models.FamilyMember, error)

	// UpdateMemberRole changes a member's role
	UpdateMemberRole(familyID, userID string, role models.FamilyRole) error

	// ListMembersByUserID lists all families a user is a member of
	ListMembersByUserID(userID string) ([]models.FamilyMember, error)

	// ListMembers lists all members of a family
	ListMembers(familyID string) ([]models.FamilyMember, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id string) (*models.User, error)

	// FindByUsername finds a user by username, ignoring case
	FindByUsername(username string) (*models.User, error)

	// UpdateDisplayName changes the name shown for a user
	UpdateDisplayName(id, displayName string) error
}
