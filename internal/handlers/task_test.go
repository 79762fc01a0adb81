package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/dto"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
)

type TaskHandlerTestSuite struct {
	suite.Suite
	env *apiTestEnv
	mom *testClient
	dad *testClient
	kid *testClient
}

func (s *TaskHandlerTestSuite) SetupTest() {
	s.env = setupAPITestEnv(s.T())
	s.mom = s.env.signup("mom")
	s.dad = s.env.signup("dad")
	s.kid = s.env.signup("kid")
	s.env.family(s.mom, s.dad, s.kid)

	w := s.mom.do(http.MethodPut, "/api/families/"+s.mom.familyID+"/members/"+s.dad.userID+"/role",
		map[string]string{"role": "parent"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *TaskHandlerTestSuite) list(c *testClient) []models.Task {
	w := c.do(http.MethodGet, "/api/tasks", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.TaskListResponse](s.T(), w)
	s.Equal(len(resp.Tasks), resp.Count)
	return resp.Tasks
}

func (s *TaskHandlerTestSuite) TestCreateAndGet() {
	task := s.kid.createTask(map[string]any{
		"title":    "Feed the cat",
		"priority": "high",
		"time":     "18:30",
	})
	s.Equal("Feed the cat", task.Title)
	s.Equal(models.PriorityHigh, task.Priority)
	s.Equal(models.TaskStatusPending, task.Status)
	s.Equal(s.kid.userID, task.CreatedBy)
	s.Require().NotNil(task.FamilyID)
	s.Equal(s.kid.familyID, *task.FamilyID)
	s.Equal(1, s.env.store.Count(constants.CollectionTasks))

	w := s.mom.do(http.MethodGet, "/api/tasks/"+task.ID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(task.ID, decode[models.Task](s.T(), w).ID)

	w = s.mom.do(http.MethodGet, "/api/tasks/missing", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(apierrors.ErrCodeNotFound, errorCode(s.T(), w))
}

func (s *TaskHandlerTestSuite) TestCreateValidation() {
	w := s.kid.do(http.MethodPost, "/api/tasks", map[string]any{"date": "2024-03-10"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.kid.do(http.MethodPost, "/api/tasks", map[string]any{"title": "Bins", "date": "10/03/2024"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apierrors.ErrCodeValidation, errorCode(s.T(), w))

	w = s.kid.do(http.MethodPost, "/api/tasks", map[string]any{"title": "Bins", "date": "2024-03-10", "time": "25:00"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apierrors.ErrCodeValidation, errorCode(s.T(), w))

	w = s.kid.do(http.MethodPost, "/api/tasks", map[string]any{"title": "Bins", "date": "2024-03-10", "assignedTo": "nobody"})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *TaskHandlerTestSuite) TestPrivateTasksStayPrivate() {
	private := s.kid.createTask(map[string]any{"title": "Diary", "private": true})
	s.True(private.Private)
	shared := s.kid.createTask(map[string]any{"title": "Dishes"})

	kidTasks := s.list(s.kid)
	s.Len(kidTasks, 2)

	momTasks := s.list(s.mom)
	s.Require().Len(momTasks, 1)
	s.Equal(shared.ID, momTasks[0].ID)

	w := s.mom.do(http.MethodGet, "/api/tasks/"+private.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *TaskHandlerTestSuite) TestUpdateAndDelete() {
	task := s.dad.createTask(map[string]any{"title": "Mow lawn"})

	w := s.dad.do(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{
		"title":      "Mow front lawn",
		"assignedTo": s.kid.userID,
		"category":   "garden",
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.Task](s.T(), w)
	s.Equal("Mow front lawn", updated.Title)
	s.Equal("garden", updated.Category)
	s.Require().NotNil(updated.AssignedTo)
	s.Equal(s.kid.userID, *updated.AssignedTo)

	w = s.dad.do(http.MethodPatch, "/api/tasks/"+task.ID, map[string]any{"date": "tomorrow"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.kid.do(http.MethodDelete, "/api/tasks/"+task.ID, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal(apierrors.ErrCodeNotAuthorized, errorCode(s.T(), w))

	w = s.dad.do(http.MethodDelete, "/api/tasks/"+task.ID, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Empty(s.list(s.mom))
	s.Equal(0, s.env.store.Count(constants.CollectionTasks))
}

func (s *TaskHandlerTestSuite) TestCompleteAndUncomplete() {
	task := s.kid.createTask(map[string]any{"title": "Homework"})

	w := s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	completed := decode[models.Task](s.T(), w)
	s.Equal(models.TaskStatusCompleted, completed.Status)
	s.Require().NotNil(completed.CompletedBy)
	s.Equal(s.kid.userID, *completed.CompletedBy)

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(apierrors.ErrCodeTaskAlreadyCompleted, errorCode(s.T(), w))

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/uncomplete", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(models.TaskStatusPending, decode[models.Task](s.T(), w).Status)
}

func (s *TaskHandlerTestSuite) TestCancelTask() {
	task := s.mom.createTask(map[string]any{"title": "Piano lesson", "assignedTo": s.kid.userID})

	w := s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/cancel", nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.mom.do(http.MethodPost, "/api/tasks/"+task.ID+"/cancel", nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/uncomplete", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.dad.do(http.MethodPost, "/api/tasks/"+task.ID+"/cancel", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(models.TaskStatusCancelled, decode[models.Task](s.T(), w).Status)

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	s.Equal(apierrors.ErrCodeTaskCancelled, errorCode(s.T(), w))
}

func (s *TaskHandlerTestSuite) TestCompleteRepeatingTaskSpawnsNext() {
	task := s.mom.createTask(map[string]any{
		"title":  "Water plants",
		"repeat": map[string]any{"type": "daily", "interval": 1},
	})

	w := s.mom.do(http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	tasks := s.list(s.mom)
	s.Require().Len(tasks, 2)
	var next *models.Task
	for i := range tasks {
		if tasks[i].ID != task.ID {
			next = &tasks[i]
		}
	}
	s.Require().NotNil(next)
	s.Equal(models.TaskStatusPending, next.Status)
	s.Equal("2024-03-11", next.Date.Format(time.DateOnly))
}

func (s *TaskHandlerTestSuite) TestPostpone() {
	task := s.kid.createTask(map[string]any{"title": "Piano practice"})

	w := s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/postpone", map[string]any{"date": "2024-03-12"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	postponed := decode[models.Task](s.T(), w)
	s.Equal(1, postponed.PostponeCount)
	s.Equal("2024-03-12", postponed.Date.Format(time.DateOnly))
	s.Require().NotNil(postponed.OriginalDate)
	s.Equal("2024-03-10", postponed.OriginalDate.Format(time.DateOnly))

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/postpone", map[string]any{})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *TaskHandlerTestSuite) TestSubtasks() {
	task := s.kid.createTask(map[string]any{"title": "Pack for camp"})

	var ids []string
	for _, title := range []string{"Tent", "Torch", "Socks"} {
		w := s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/subtasks", map[string]any{"title": title})
		s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
		subtasks := decode[models.Task](s.T(), w).Subtasks
		ids = append(ids, subtasks[len(subtasks)-1].ID)
	}

	w := s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/subtasks/reorder",
		map[string]any{"subtaskIds": []string{ids[2], ids[0], ids[1]}})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	reordered := decode[models.Task](s.T(), w).Subtasks
	s.Require().Len(reordered, 3)
	s.Equal("Socks", reordered[0].Title)

	w = s.kid.do(http.MethodPost, "/api/tasks/"+task.ID+"/subtasks/"+ids[0]+"/toggle", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.kid.do(http.MethodPatch, "/api/tasks/"+task.ID+"/subtasks/"+ids[1], map[string]any{"title": "Head torch"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.kid.do(http.MethodDelete, "/api/tasks/"+task.ID+"/subtasks/"+ids[2], nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.kid.do(http.MethodDelete, "/api/tasks/"+task.ID+"/subtasks/"+ids[2], nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(apierrors.ErrCodeSubtaskNotFound, errorCode(s.T(), w))

	w = s.kid.do(http.MethodGet, "/api/tasks/"+task.ID, nil)
	subtasks := decode[models.Task](s.T(), w).Subtasks
	s.Require().Len(subtasks, 2)
	byID := map[string]models.Subtask{}
	for _, st := range subtasks {
		byID[st.ID] = st
	}
	s.True(byID[ids[0]].Completed)
	s.Equal("Head torch", byID[ids[1]].Title)
}

func (s *TaskHandlerTestSuite) TestOfflineWritesAreQueued() {
	w := s.mom.do(http.MethodPost, "/api/sync/connectivity", map[string]any{"online": false})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	task := s.mom.createTask(map[string]any{"title": "Buy milk"})
	s.Equal(0, s.env.store.Count(constants.CollectionTasks))

	tasks := s.list(s.mom)
	s.Require().Len(tasks, 1)
	s.Equal(task.ID, tasks[0].ID)

	w = s.mom.do(http.MethodPost, "/api/sync/connectivity", map[string]any{"online": true})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(1, s.env.store.Count(constants.CollectionTasks))
}

func (s *TaskHandlerTestSuite) TestRoutesNeedLogin() {
	anon := &testClient{env: s.env}
	w := anon.do(http.MethodGet, "/api/tasks", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
	w = anon.do(http.MethodPost, "/api/tasks", map[string]any{"title": "x", "date": "2024-03-10"})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func TestTaskHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(TaskHandlerTestSuite))
}

func TestTaskHandler_StreamTasks(t *testing.T) {
	env := setupAPITestEnv(t)
	mom := env.signup("mom")
	env.family(mom)
	mom.createTask(map[string]any{"title": "Stream me"})

	w := streamFor(mom, "/api/tasks/stream", 300*time.Millisecond)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "event:tasks")
	assert.Contains(t, body, "Stream me")
}

func TestTaskHandler_StreamHeartbeat(t *testing.T) {
	env := setupAPITestEnv(t)
	mom := env.signup("mom")
	env.family(mom)

	handler := NewTaskHandler(env.services.Tasks, env.services.Approvals)
	handler.heartbeat = 20 * time.Millisecond

	session, err := env.services.Families.Session(mom.userID, mom.familyID)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		c.Set(constants.ContextKeySession, session)
	}, handler.StreamTasks)
	env.router = r

	w := streamFor(mom, "/stream", 150*time.Millisecond)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), ": ping"), w.Body.String())
}
