package services

import (
	"errors"
	"time"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
)

func (suite *ServiceTestSuite) TestCreateTask() {
	assignee := "kid"
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "  Take out trash ", AssignedTo: &assignee})

	suite.Equal("Take out trash", task.Title)
	suite.Equal(models.TaskStatusPending, task.Status)
	suite.Equal(models.PriorityMedium, task.Priority)
	suite.Equal("fam1", *task.FamilyID)
	suite.False(task.Private)
	suite.Equal(1, suite.store.Count(constants.CollectionTasks))
	suite.Equal(int64(1), suite.historyCount(models.ActionTaskCreated))

	got := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.Require().True(got.IsSuccess, got.Error)
	suite.Equal(task.ID, got.Value.ID)
}

func (suite *ServiceTestSuite) TestCreateTaskValidation() {
	result := suite.tasks.Create(suite.ctx, suite.mom, CreateTaskInput{Title: "  ", Date: taskDate})
	suite.assertFailure(apperrors.ErrCodeValidation, result.ErrorCode, result.IsSuccess)
	suite.Equal(apperrors.KindValidation, result.Kind)

	outsider := "loner"
	result = suite.tasks.Create(suite.ctx, suite.mom, CreateTaskInput{Title: "Walk dog", Date: taskDate, AssignedTo: &outsider})
	suite.assertFailure(apperrors.ErrCodeValidation, result.ErrorCode, result.IsSuccess)

	result = suite.tasks.Create(suite.ctx, suite.mom, CreateTaskInput{Title: "Diary", Date: taskDate, Private: true, RequiresApproval: true})
	suite.assertFailure(apperrors.ErrCodeValidation, result.ErrorCode, result.IsSuccess)

	suite.Equal(0, suite.store.Count(constants.CollectionTasks))
}

func (suite *ServiceTestSuite) TestPrivateTaskIsHidden() {
	secret := suite.createTask(suite.mom, CreateTaskInput{Title: "Buy birthday present", Private: true})
	suite.True(secret.Private)
	suite.Nil(secret.FamilyID)
	shared := suite.createTask(suite.mom, CreateTaskInput{Title: "Groceries"})

	for _, session := range []models.SessionContext{suite.dad, suite.child, suite.loner} {
		got := suite.tasks.Get(suite.ctx, session, secret.ID)
		suite.assertFailure(apperrors.ErrCodeNotFound, got.ErrorCode, got.IsSuccess)

		deleted := suite.tasks.Delete(suite.ctx, session, secret.ID)
		suite.assertFailure(apperrors.ErrCodeNotFound, deleted.ErrorCode, deleted.IsSuccess)
	}

	forDad := suite.tasks.List(suite.ctx, suite.dad)
	suite.Require().True(forDad.IsSuccess, forDad.Error)
	suite.Require().Len(forDad.Value, 1)
	suite.Equal(shared.ID, forDad.Value[0].ID)

	forMom := suite.tasks.List(suite.ctx, suite.mom)
	suite.Require().True(forMom.IsSuccess, forMom.Error)
	suite.Len(forMom.Value, 2)

	forLoner := suite.tasks.List(suite.ctx, suite.loner)
	suite.Require().True(forLoner.IsSuccess, forLoner.Error)
	suite.Empty(forLoner.Value)
}

func (suite *ServiceTestSuite) TestOfflineWritesServeFromCache() {
	suite.online.Store(false)

	task := suite.createTask(suite.child, CreateTaskInput{Title: "Practice piano"})
	suite.Equal(0, suite.store.Count(constants.CollectionTasks))

	pending, err := suite.outbox.Pending(suite.ctx)
	suite.Require().NoError(err)
	suite.NotEmpty(pending)

	list := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 1)
	suite.Equal(task.ID, list.Value[0].ID)

	completed := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.Require().True(completed.IsSuccess, completed.Error)

	got := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.Require().True(got.IsSuccess, got.Error)
	suite.True(got.Value.IsCompleted())
}

func (suite *ServiceTestSuite) TestListFallsBackWhenRemoteUnavailable() {
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Pay bills"})
	suite.store.SetOffline(true)

	list := suite.tasks.List(suite.ctx, suite.dad)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 1)
	suite.Equal(task.ID, list.Value[0].ID)
}

func (suite *ServiceTestSuite) TestListOverlaysUnsyncedChanges() {
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Vacuum"})

	suite.online.Store(false)
	title := "Vacuum the stairs"
	updated := suite.tasks.Update(suite.ctx, suite.mom, task.ID, models.TaskPatch{Title: &title})
	suite.Require().True(updated.IsSuccess, updated.Error)
	suite.online.Store(true)

	list := suite.tasks.List(suite.ctx, suite.mom)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 1)
	suite.Equal(title, list.Value[0].Title)
}

func (suite *ServiceTestSuite) TestUpdatePermissions() {
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Mow lawn"})

	title := "Mow the back lawn"
	byChild := suite.tasks.Update(suite.ctx, suite.child, task.ID, models.TaskPatch{Title: &title})
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, byChild.ErrorCode, byChild.IsSuccess)

	byDad := suite.tasks.Update(suite.ctx, suite.dad, task.ID, models.TaskPatch{Title: &title})
	suite.Require().True(byDad.IsSuccess, byDad.Error)
	suite.Equal(title, byDad.Value.Title)

	hide := suite.tasks.Update(suite.ctx, suite.dad, task.ID, models.TaskPatch{MakePrivate: true})
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, hide.ErrorCode, hide.IsSuccess)

	other := "fam2"
	move := suite.tasks.Update(suite.ctx, suite.mom, task.ID, models.TaskPatch{FamilyID: &other})
	suite.assertFailure(apperrors.ErrCodeValidation, move.ErrorCode, move.IsSuccess)

	assignee := "kid"
	assigned := suite.tasks.Update(suite.ctx, suite.mom, task.ID, models.TaskPatch{AssignedTo: &assignee})
	suite.Require().True(assigned.IsSuccess, assigned.Error)

	byAssignee := suite.tasks.Update(suite.ctx, suite.child, task.ID, models.TaskPatch{Title: &title})
	suite.True(byAssignee.IsSuccess, byAssignee.Error)
}

func (suite *ServiceTestSuite) TestDeleteCancelsPendingApproval() {
	task, approval := suite.completeForReview(models.RepeatConfig{})

	deleted := suite.tasks.Delete(suite.ctx, suite.dad, task.ID)
	suite.Require().True(deleted.IsSuccess, deleted.Error)

	stored, err := suite.store.Get(suite.ctx, constants.CollectionApprovals, approval.ID)
	suite.Require().NoError(err)
	suite.Equal(string(models.ApprovalCancelled), stored.Data["status"])
	suite.Equal(0, suite.store.Count(constants.CollectionTasks))
	suite.Equal(int64(1), suite.historyCount(models.ActionTaskDeleted))
}

func (suite *ServiceTestSuite) TestCompleteRepeatingTask() {
	task := suite.createTask(suite.child, CreateTaskInput{
		Title:  "Take vitamins",
		Repeat: models.RepeatConfig{Type: models.RepeatWeekly, DaysOfWeek: []time.Weekday{time.Sunday, time.Wednesday}},
	})

	completed := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.Require().True(completed.IsSuccess, completed.Error)
	suite.Equal("kid", *completed.Value.CompletedBy)

	again := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeTaskAlreadyCompleted, again.ErrorCode, again.IsSuccess)

	list := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 2)
	dates := map[string]models.TaskStatus{}
	for _, t := range list.Value {
		dates[t.Date.Format(time.DateOnly)] = t.Status
	}
	suite.Equal(map[string]models.TaskStatus{
		"2024-03-10": models.TaskStatusCompleted,
		"2024-03-13": models.TaskStatusPending,
	}, dates)
}

func (suite *ServiceTestSuite) TestUncompleteWithdrawsApproval() {
	task, approval := suite.completeForReview(models.RepeatConfig{})

	result := suite.tasks.Uncomplete(suite.ctx, suite.child, task.ID)
	suite.Require().True(result.IsSuccess, result.Error)
	suite.Equal(models.TaskStatusPending, result.Value.Status)

	stored, err := suite.store.Get(suite.ctx, constants.CollectionApprovals, approval.ID)
	suite.Require().NoError(err)
	suite.Equal(string(models.ApprovalCancelled), stored.Data["status"])

	pending := suite.approvals.ListPending(suite.ctx, suite.mom)
	suite.Require().True(pending.IsSuccess)
	suite.Empty(pending.Value)

	again := suite.tasks.Uncomplete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeTaskNotCompleted, again.ErrorCode, again.IsSuccess)
}

func (suite *ServiceTestSuite) TestPostponeRecordsHistory() {
	task := suite.createTask(suite.child, CreateTaskInput{Title: "Dentist"})

	first := suite.tasks.Postpone(suite.ctx, suite.child, task.ID, taskDate.AddDate(0, 0, 2), nil)
	suite.Require().True(first.IsSuccess, first.Error)
	second := suite.tasks.Postpone(suite.ctx, suite.child, task.ID, taskDate.AddDate(0, 0, 5), nil)
	suite.Require().True(second.IsSuccess, second.Error)

	suite.Equal(2, second.Value.PostponeCount)
	suite.Equal("2024-03-10", second.Value.OriginalDate.Format(time.DateOnly))
	suite.Equal("2024-03-15", second.Value.Date.Format(time.DateOnly))

	taskID := task.ID
	page := suite.history.List(suite.ctx, suite.mom, HistoryQuery{TaskID: &taskID})
	suite.Require().True(page.IsSuccess, page.Error)
	suite.Equal(int64(3), page.Value.Total)
	latest := page.Value.Items[0]
	suite.Equal(models.ActionTaskPostponed, latest.Action)
	suite.Equal("2024-03-12", latest.Details["from"])
	suite.Equal("2024-03-15", latest.Details["to"])
}

func (suite *ServiceTestSuite) TestSubtasks() {
	task := suite.createTask(suite.child, CreateTaskInput{Title: "Pack for trip"})

	added := suite.tasks.AddSubtask(suite.ctx, suite.child, task.ID, SubtaskInput{Title: "Socks"})
	suite.Require().True(added.IsSuccess, added.Error)
	added = suite.tasks.AddSubtask(suite.ctx, suite.child, task.ID, SubtaskInput{Title: "Toothbrush"})
	suite.Require().True(added.IsSuccess, added.Error)
	suite.Require().Len(added.Value.Subtasks, 2)
	socks, brush := added.Value.Subtasks[0].ID, added.Value.Subtasks[1].ID

	toggled := suite.tasks.ToggleSubtask(suite.ctx, suite.child, task.ID, socks)
	suite.Require().True(toggled.IsSuccess, toggled.Error)
	suite.True(toggled.Value.Subtasks[0].Completed)

	reordered := suite.tasks.ReorderSubtasks(suite.ctx, suite.child, task.ID, []string{brush, socks})
	suite.Require().True(reordered.IsSuccess, reordered.Error)
	suite.Equal(brush, reordered.Value.Subtasks[0].ID)

	removed := suite.tasks.RemoveSubtask(suite.ctx, suite.child, task.ID, brush)
	suite.Require().True(removed.IsSuccess, removed.Error)
	suite.Require().Len(removed.Value.Subtasks, 1)
	suite.Equal(socks, removed.Value.Subtasks[0].ID)

	missing := suite.tasks.ToggleSubtask(suite.ctx, suite.child, task.ID, "nope")
	suite.assertFailure(apperrors.ErrCodeSubtaskNotFound, missing.ErrorCode, missing.IsSuccess)

	byOutsider := suite.tasks.AddSubtask(suite.ctx, suite.loner, task.ID, SubtaskInput{Title: "Hat"})
	suite.assertFailure(apperrors.ErrCodeNotFound, byOutsider.ErrorCode, byOutsider.IsSuccess)
}

func (suite *ServiceTestSuite) TestHistoryScopeAndPrune() {
	suite.createTask(suite.mom, CreateTaskInput{Title: "Shared"})
	suite.createTask(suite.loner, CreateTaskInput{Title: "Alone"})

	family := suite.history.List(suite.ctx, suite.child, HistoryQuery{})
	suite.Require().True(family.IsSuccess, family.Error)
	suite.Equal(int64(1), family.Value.Total)

	own := suite.history.List(suite.ctx, suite.loner, HistoryQuery{})
	suite.Require().True(own.IsSuccess, own.Error)
	suite.Equal(int64(1), own.Value.Total)

	old := models.NewHistoryItem("old-item", models.ActionTaskCreated, suite.mom, nil, nil, time.Now().AddDate(0, 0, -45))
	suite.Require().NoError(suite.db.Create(&old).Error)

	pruned := suite.history.Prune(suite.ctx)
	suite.Require().True(pruned.IsSuccess, pruned.Error)
	suite.Equal(int64(1), pruned.Value)
	suite.Equal(int64(2), suite.historyCount(models.ActionTaskCreated))
}

func (suite *ServiceTestSuite) TestRemoteFailureIsRepositoryError() {
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Recycle"})
	suite.store.SetWriteHook(func(op, collection, id string) error {
		return errors.New("permission denied")
	})

	title := "Recycle bottles"
	result := suite.tasks.Update(suite.ctx, suite.mom, task.ID, models.TaskPatch{Title: &title})
	suite.False(result.IsSuccess)
	suite.Equal(apperrors.KindRepository, result.Kind)
	suite.Equal(apperrors.ErrCodeRepository, result.ErrorCode)
	suite.NotNil(result.Err())
}

func (suite *ServiceTestSuite) TestListCachesRemoteTasksForOffline() {
	family, kid := "fam1", "kid"
	fromPhone, err := models.NewTask("remote-1", models.NewTaskInput{
		Title:      "Feed the fish",
		Date:       taskDate,
		CreatedBy:  "mom",
		FamilyID:   &family,
		AssignedTo: &kid,
	}, time.Now())
	suite.Require().NoError(err)
	_, err = suite.store.Create(suite.ctx, constants.CollectionTasks, fromPhone.ID, fromPhone.ToDocument())
	suite.Require().NoError(err)

	online := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(online.IsSuccess, online.Error)
	suite.Require().Len(online.Value, 1)

	suite.online.Store(false)
	offline := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(offline.IsSuccess, offline.Error)
	suite.Require().Len(offline.Value, 1)
	suite.Equal("remote-1", offline.Value[0].ID)

	completed := suite.tasks.Complete(suite.ctx, suite.child, "remote-1")
	suite.Require().True(completed.IsSuccess, completed.Error)
	pending, err := suite.outbox.Pending(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(pending, 2, "task update and history item are queued")
}

func (suite *ServiceTestSuite) TestListDropsTasksDeletedRemotely() {
	gone := suite.createTask(suite.mom, CreateTaskInput{Title: "Sweep porch"})
	suite.online.Store(false)
	draft := suite.createTask(suite.mom, CreateTaskInput{Title: "Plan holiday"})
	suite.online.Store(true)
	suite.Require().NoError(suite.store.Delete(suite.ctx, constants.CollectionTasks, gone.ID))

	list := suite.tasks.List(suite.ctx, suite.mom)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 1)
	suite.Equal(draft.ID, list.Value[0].ID)

	suite.online.Store(false)
	cached := suite.tasks.List(suite.ctx, suite.mom)
	suite.Require().True(cached.IsSuccess, cached.Error)
	suite.Require().Len(cached.Value, 1, "unsynced drafts stay, remote deletions are applied")
	suite.Equal(draft.ID, cached.Value[0].ID)
}

func (suite *ServiceTestSuite) TestCompleteRequiresWorkRights() {
	dad := "dad"
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Mow the lawn", AssignedTo: &dad})

	seen := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.Require().True(seen.IsSuccess, seen.Error)

	denied := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, denied.ErrorCode, denied.IsSuccess)

	done := suite.tasks.Complete(suite.ctx, suite.dad, task.ID)
	suite.Require().True(done.IsSuccess, done.Error)

	reopen := suite.tasks.Uncomplete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, reopen.ErrorCode, reopen.IsSuccess)
	suite.Equal(int64(0), suite.historyCount(models.ActionTaskUncompleted))
}

func (suite *ServiceTestSuite) TestUncompleteApprovedTaskNeedsParent() {
	task, approval := suite.completeForReview(models.RepeatConfig{})
	approved := suite.approvals.Approve(suite.ctx, suite.mom, approval.ID, nil)
	suite.Require().True(approved.IsSuccess, approved.Error)

	own := suite.tasks.Uncomplete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, own.ErrorCode, own.IsSuccess)

	reopened := suite.tasks.Uncomplete(suite.ctx, suite.dad, task.ID)
	suite.Require().True(reopened.IsSuccess, reopened.Error)
	suite.Equal(models.TaskStatusPending, reopened.Value.Status)
	suite.Nil(reopened.Value.ApprovalStatus)
}

func (suite *ServiceTestSuite) TestCancelTask() {
	kid := "kid"
	task := suite.createTask(suite.mom, CreateTaskInput{Title: "Swimming lesson", AssignedTo: &kid})

	denied := suite.tasks.Cancel(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, denied.ErrorCode, denied.IsSuccess)

	cancelled := suite.tasks.Cancel(suite.ctx, suite.dad, task.ID)
	suite.Require().True(cancelled.IsSuccess, cancelled.Error)
	suite.Equal(models.TaskStatusCancelled, cancelled.Value.Status)
	suite.Equal(int64(1), suite.historyCount(models.ActionTaskCancelled))

	stored, err := suite.store.Get(suite.ctx, constants.CollectionTasks, task.ID)
	suite.Require().NoError(err)
	suite.Equal(string(models.TaskStatusCancelled), stored.Data["status"])

	complete := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeTaskCancelled, complete.ErrorCode, complete.IsSuccess)

	again := suite.tasks.Cancel(suite.ctx, suite.mom, task.ID)
	suite.False(again.IsSuccess)
}
