package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/middleware"
	"github.com/yukikurage/family-task-sync/internal/outbox"
	"github.com/yukikurage/family-task-sync/internal/services"
	"github.com/yukikurage/family-task-sync/internal/syncengine"
)

// Services holds what the HTTP layer calls into.
type Services struct {
	Auth      *services.AuthService
	Families  *services.FamilyService
	Tasks     *services.TaskService
	Approvals *services.ApprovalService
	History   *services.HistoryService
	Engine    *syncengine.Engine
	Outbox    *outbox.Outbox
}

// RegisterRoutes mounts the API under /api. Session middleware must already be installed on r.
func RegisterRoutes(r gin.IRouter, s Services) {
	authHandler := NewAuthHandler(s.Auth)
	familyHandler := NewFamilyHandler(s.Families)
	taskHandler := NewTaskHandler(s.Tasks, s.Approvals)
	approvalHandler := NewApprovalHandler(s.Approvals)
	historyHandler := NewHistoryHandler(s.History)
	syncHandler := NewSyncHandler(s.Engine, s.Outbox)

	requireSession := middleware.RequireSession(s.Families)
	requireFamily := middleware.RequireFamilyAccess(s.Families)
	requireAdmin := middleware.RequireFamilyAdmin()
	requireTask := middleware.RequireTaskAccess(s.Tasks)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.RequireAuth(), authHandler.GetCurrentUser)
			auth.PATCH("/me", middleware.RequireAuth(), authHandler.UpdateCurrentUser)
		}

		// Family routes (protected)
		families := api.Group("/families")
		families.Use(middleware.RequireAuth())
		{
			families.POST("", familyHandler.CreateFamily)
			families.GET("", familyHandler.ListFamilies)
			families.POST("/join", familyHandler.JoinFamily)
			families.GET("/:id", requireFamily, familyHandler.GetFamily)
			families.PUT("/:id", requireFamily, requireAdmin, familyHandler.UpdateFamily)
			families.POST("/:id/regenerate-code", requireFamily, requireAdmin, familyHandler.RegenerateInviteCode)
			families.GET("/:id/members", requireFamily, familyHandler.ListMembers)
			families.PUT("/:id/members/:user_id/role", requireFamily, requireAdmin, familyHandler.UpdateMemberRole)
			families.DELETE("/:id/members/:user_id", requireFamily, requireAdmin, familyHandler.RemoveMember)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(middleware.RequireAuth(), requireSession)
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/stream", taskHandler.StreamTasks)
			tasks.POST("", taskHandler.CreateTask)
			tasks.GET("/:id", requireTask, taskHandler.GetTask)
			tasks.PATCH("/:id", taskHandler.UpdateTask)
			tasks.DELETE("/:id", taskHandler.DeleteTask)
			tasks.POST("/:id/complete", taskHandler.CompleteTask)
			tasks.POST("/:id/uncomplete", taskHandler.UncompleteTask)
			tasks.POST("/:id/cancel", taskHandler.CancelTask)
			tasks.POST("/:id/postpone", taskHandler.PostponeTask)
			tasks.POST("/:id/subtasks", taskHandler.AddSubtask)
			tasks.POST("/:id/subtasks/reorder", taskHandler.ReorderSubtasks)
			tasks.PATCH("/:id/subtasks/:subtask_id", taskHandler.UpdateSubtask)
			tasks.POST("/:id/subtasks/:subtask_id/toggle", taskHandler.ToggleSubtask)
			tasks.DELETE("/:id/subtasks/:subtask_id", taskHandler.RemoveSubtask)
			tasks.POST("/:id/approval", taskHandler.RequestApproval)
		}

		approvals := api.Group("/approvals")
		approvals.Use(middleware.RequireAuth(), requireSession)
		{
			approvals.GET("", approvalHandler.ListPending)
			approvals.POST("/:id/approve", approvalHandler.Approve)
			approvals.POST("/:id/reject", approvalHandler.Reject)
			approvals.POST("/:id/cancel", approvalHandler.Cancel)
		}

		history := api.Group("/history")
		history.Use(middleware.RequireAuth(), requireSession)
		{
			history.GET("", historyHandler.ListHistory)
			history.POST("/prune", historyHandler.PruneHistory)
		}

		sync := api.Group("/sync")
		sync.Use(middleware.RequireAuth())
		{
			sync.GET("/status", syncHandler.GetStatus)
			sync.POST("/trigger", syncHandler.Trigger)
			sync.POST("/connectivity", syncHandler.SetConnectivity)
			sync.GET("/offline", requireSession, syncHandler.GetOfflineData)
			sync.GET("/failed", syncHandler.ListFailed)
			sync.POST("/failed/:id/retry", syncHandler.RetryFailed)
			sync.DELETE("/failed/:id", syncHandler.DiscardFailed)
		}
	}
}
