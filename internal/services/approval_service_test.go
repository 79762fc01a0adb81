package services

import (
	"sync"
	"time"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
)

// completeForReview has the child create and complete a task that needs approval.
func (suite *ServiceTestSuite) completeForReview(repeat models.RepeatConfig) (models.Task, models.ApprovalRequest) {
	task := suite.createTask(suite.child, CreateTaskInput{Title: "Tidy room", RequiresApproval: true, Repeat: repeat})

	completed := suite.tasks.Complete(suite.ctx, suite.child, task.ID)
	suite.Require().True(completed.IsSuccess, completed.Error)
	suite.Require().True(completed.Value.IsPendingApproval())

	pending := suite.approvals.ListPending(suite.ctx, suite.mom)
	suite.Require().True(pending.IsSuccess, pending.Error)
	suite.Require().Len(pending.Value, 1)
	suite.Equal(task.ID, pending.Value[0].TaskID)
	suite.Equal("kid", pending.Value[0].RequesterID)
	return completed.Value, pending.Value[0]
}

func (suite *ServiceTestSuite) TestRejectDeletesTask() {
	task, approval := suite.completeForReview(models.RepeatConfig{Type: models.RepeatDaily})

	comment := "not tidy yet"
	result := suite.approvals.Reject(suite.ctx, suite.mom, approval.ID, &comment)
	suite.Require().True(result.IsSuccess, result.Error)
	suite.Equal(models.ApprovalRejected, result.Value.Status)
	suite.Equal("mom", *result.Value.ReviewerID)

	get := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.assertFailure(apperrors.ErrCodeNotFound, get.ErrorCode, get.IsSuccess)

	list := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Empty(list.Value)

	suite.Equal(int64(1), suite.historyCount(models.ActionApprovalRejected))
	suite.Equal(1, suite.store.Count(constants.CollectionNotifications))

	again := suite.approvals.Approve(suite.ctx, suite.dad, approval.ID, nil)
	suite.assertFailure(apperrors.ErrCodeApprovalNotPending, again.ErrorCode, again.IsSuccess)
}

func (suite *ServiceTestSuite) TestApproveSpawnsNextOccurrence() {
	task, approval := suite.completeForReview(models.RepeatConfig{Type: models.RepeatDaily})

	result := suite.approvals.Approve(suite.ctx, suite.dad, approval.ID, nil)
	suite.Require().True(result.IsSuccess, result.Error)
	suite.Equal(models.ApprovalApproved, result.Value.Status)

	approved := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.Require().True(approved.IsSuccess, approved.Error)
	suite.Equal(models.ApprovalApproved, *approved.Value.ApprovalStatus)
	suite.Equal("dad", *approved.Value.ApprovedBy)
	suite.True(approved.Value.IsCompleted())

	list := suite.tasks.List(suite.ctx, suite.child)
	suite.Require().True(list.IsSuccess, list.Error)
	suite.Require().Len(list.Value, 2)
	var next *models.Task
	for i := range list.Value {
		if list.Value[i].ID != task.ID {
			next = &list.Value[i]
		}
	}
	suite.Require().NotNil(next)
	suite.Equal("2024-03-11", next.Date.Format(time.DateOnly))
	suite.Equal(models.TaskStatusPending, next.Status)
	suite.True(next.RequiresApproval)

	suite.Equal(int64(1), suite.historyCount(models.ActionApprovalApproved))
	suite.Equal(1, suite.store.Count(constants.CollectionNotifications))

	pending := suite.approvals.ListPending(suite.ctx, suite.mom)
	suite.Require().True(pending.IsSuccess)
	suite.Empty(pending.Value)
}

func (suite *ServiceTestSuite) TestOnlyParentsMayReview() {
	_, approval := suite.completeForReview(models.RepeatConfig{})

	byChild := suite.approvals.Approve(suite.ctx, suite.child, approval.ID, nil)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, byChild.ErrorCode, byChild.IsSuccess)
	suite.Equal(apperrors.KindNotAuthorized, byChild.Kind)

	byOutsider := suite.approvals.Reject(suite.ctx, suite.loner, approval.ID, nil)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, byOutsider.ErrorCode, byOutsider.IsSuccess)

	_, err := suite.families.UpdateMemberRole("fam1", "mom", "dad", models.RoleChild)
	suite.Require().NoError(err)
	byDemoted := suite.approvals.Approve(suite.ctx, suite.dad, approval.ID, nil)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, byDemoted.ErrorCode, byDemoted.IsSuccess)

	pending := suite.approvals.ListPending(suite.ctx, suite.mom)
	suite.Require().True(pending.IsSuccess)
	suite.Len(pending.Value, 1)
}

func (suite *ServiceTestSuite) TestRequesterCannotReviewOwnRequest() {
	task := suite.createTask(suite.dad, CreateTaskInput{Title: "Fix the sink", RequiresApproval: true})
	suite.Require().True(suite.tasks.Complete(suite.ctx, suite.dad, task.ID).IsSuccess)

	pending := suite.approvals.ListPending(suite.ctx, suite.dad)
	suite.Require().True(pending.IsSuccess)
	suite.Require().Len(pending.Value, 1)

	own := suite.approvals.Approve(suite.ctx, suite.dad, pending.Value[0].ID, nil)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, own.ErrorCode, own.IsSuccess)

	byOther := suite.approvals.Approve(suite.ctx, suite.mom, pending.Value[0].ID, nil)
	suite.True(byOther.IsSuccess, byOther.Error)
}

func (suite *ServiceTestSuite) TestConcurrentRequestsOpenOneApproval() {
	task := suite.createTask(suite.child, CreateTaskInput{Title: "Feed the cat", RequiresApproval: true})
	completed, err := task.Complete("kid", time.Now())
	suite.Require().NoError(err)
	suite.Require().NoError(suite.taskRepo.Update(suite.ctx, completed))

	const callers = 5
	results := make([]Result[models.ApprovalRequest], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = suite.approvals.RequestApproval(suite.ctx, suite.child, task.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, result := range results {
		if result.IsSuccess {
			succeeded++
			continue
		}
		suite.Equal(apperrors.ErrCodeApprovalAlreadyExists, result.ErrorCode)
	}
	suite.Equal(1, succeeded)
	suite.Equal(1, suite.store.Count(constants.CollectionApprovals))
}

func (suite *ServiceTestSuite) TestRequestApprovalNeedsPendingTask() {
	plain := suite.createTask(suite.child, CreateTaskInput{Title: "Read a book"})
	result := suite.approvals.RequestApproval(suite.ctx, suite.child, plain.ID)
	suite.assertFailure(apperrors.ErrCodeApprovalNotRequired, result.ErrorCode, result.IsSuccess)

	open := suite.createTask(suite.child, CreateTaskInput{Title: "Homework", RequiresApproval: true})
	result = suite.approvals.RequestApproval(suite.ctx, suite.child, open.ID)
	suite.assertFailure(apperrors.ErrCodeTaskNotPendingApproval, result.ErrorCode, result.IsSuccess)
	suite.Equal(apperrors.KindDomain, result.Kind)
}

func (suite *ServiceTestSuite) TestCancelReopensTask() {
	task, approval := suite.completeForReview(models.RepeatConfig{})

	byOther := suite.approvals.Cancel(suite.ctx, suite.mom, approval.ID)
	suite.assertFailure(apperrors.ErrCodeNotAuthorized, byOther.ErrorCode, byOther.IsSuccess)

	result := suite.approvals.Cancel(suite.ctx, suite.child, approval.ID)
	suite.Require().True(result.IsSuccess, result.Error)
	suite.Equal(models.ApprovalCancelled, result.Value.Status)

	reopened := suite.tasks.Get(suite.ctx, suite.child, task.ID)
	suite.Require().True(reopened.IsSuccess)
	suite.Equal(models.TaskStatusPending, reopened.Value.Status)
	suite.Nil(reopened.Value.CompletedAt)
	suite.Equal(int64(1), suite.historyCount(models.ActionApprovalCancelled))
}

func (suite *ServiceTestSuite) TestUnknownApproval() {
	result := suite.approvals.Approve(suite.ctx, suite.mom, "missing", nil)
	suite.assertFailure(apperrors.ErrCodeNotFound, result.ErrorCode, result.IsSuccess)
	suite.Equal(apperrors.KindNotFound, result.Kind)
}
