package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/taskrelay/server/internal/ai"
	"github.com/taskrelay/server/internal/auth"
	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
	"github.com/taskrelay/server/internal/modules/serializer"
	"github.com/taskrelay/server/internal/modules/service"
)

type TaskHandler struct {
	svc service.TaskService
}

func NewTaskHandler(s service.TaskService) *TaskHandler {
	return &TaskHandler{svc: s}
}

type CreateTaskReq struct {
	Description  string     `json:"description" binding:"required" example:"Open the billing page and download the latest invoice"`
	Type         string     `json:"type" enums:"IMMEDIATE,SCHEDULED" example:"IMMEDIATE"`
	Priority     string     `json:"priority" enums:"LOW,MEDIUM,HIGH,URGENT" example:"MEDIUM"`
	ScheduledFor *time.Time `json:"scheduled_for" example:"2026-01-02T15:04:05Z"`
	Model        string     `json:"model" example:"claude-opus-4-20250514"`
	CreatedBy    string     `json:"created_by" enums:"USER,ASSISTANT" example:"USER"`
}

// CreateTask godoc
//
//	@Summary		Create task
//	@Description	Create a task. Immediate tasks are handed to the executor right away, scheduled ones once scheduled_for has passed.
//	@Tags			task
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	handler.CreateTaskReq	true	"CreateTask payload"
//	@Security		BearerAuth
//	@Success		201	{object}	serializer.Response{data=model.Task}
//	@Failure		400	{object}	serializer.Response
//	@Failure		401	{object}	serializer.Response
//	@Router			/tasks [post]
func (h *TaskHandler) CreateTask(c *gin.Context) {
	req := CreateTaskReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	in := service.CreateTaskInput{
		Description:  req.Description,
		ScheduledFor: req.ScheduledFor,
		Model:        req.Model,
		UserID:       callerID(c),
	}
	var err error
	if req.Type != "" {
		if in.Type, err = model.ParseTaskType(req.Type); err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid type", err))
			return
		}
	}
	if req.Priority != "" {
		if in.Priority, err = model.ParseTaskPriority(req.Priority); err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid priority", err))
			return
		}
	}
	if req.CreatedBy != "" {
		if in.CreatedBy, err = model.ParseRole(req.CreatedBy); err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid created_by", err))
			return
		}
	}

	task, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: task})
}

type ListTasksReq struct {
	Status    string `form:"status" json:"status" example:"RUNNING,NEEDS_HELP"`
	Priority  string `form:"priority" json:"priority" example:"HIGH"`
	Type      string `form:"type" json:"type" example:"SCHEDULED"`
	CreatedBy string `form:"created_by" json:"created_by" example:"USER"`
	UserID    string `form:"user_id" json:"user_id" format:"uuid"`
	Page      int    `form:"page,default=1" json:"page" binding:"min=1" example:"1"`
	Limit     int    `form:"limit,default=20" json:"limit" binding:"min=1,max=100" example:"20"`
}

// ListTasks godoc
//
//	@Summary		List tasks
//	@Description	List tasks newest first, optionally filtered
//	@Tags			task
//	@Produce		json
//	@Param			status		query	string	false	"Comma separated statuses"
//	@Param			priority	query	string	false	"Priority"
//	@Param			type		query	string	false	"Task type"
//	@Param			created_by	query	string	false	"Creator role"
//	@Param			user_id		query	string	false	"Owner"	format(uuid)
//	@Param			page		query	integer	false	"Page, starting at 1"
//	@Param			limit		query	integer	false	"Page size, default 20. Max 100."
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=serializer.ListData{items=[]model.Task}}
//	@Router			/tasks [get]
func (h *TaskHandler) ListTasks(c *gin.Context) {
	req := ListTasksReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	f, err := req.filter()
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	items, total, err := h.svc.List(c.Request.Context(), f, req.Page, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	if items == nil {
		items = []*model.Task{}
	}
	c.JSON(http.StatusOK, serializer.Response{Data: serializer.ListData{
		Items: items,
		Total: total,
		Page:  req.Page,
		Limit: req.Limit,
	}})
}

func (req ListTasksReq) filter() (repo.TaskFilter, error) {
	var f repo.TaskFilter
	if req.Status != "" {
		for _, s := range strings.Split(req.Status, ",") {
			st, err := model.ParseTaskStatus(s)
			if err != nil {
				return f, err
			}
			f.Status = append(f.Status, st)
		}
	}
	if req.Priority != "" {
		p, err := model.ParseTaskPriority(req.Priority)
		if err != nil {
			return f, err
		}
		f.Priority = &p
	}
	if req.Type != "" {
		t, err := model.ParseTaskType(req.Type)
		if err != nil {
			return f, err
		}
		f.Type = &t
	}
	if req.CreatedBy != "" {
		r, err := model.ParseRole(req.CreatedBy)
		if err != nil {
			return f, err
		}
		f.CreatedBy = &r
	}
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return f, err
		}
		f.UserID = &id
	}
	return f, nil
}

// GetTask godoc
//
//	@Summary	Get task
//	@Tags		task
//	@Produce	json
//	@Param		task_id	path	string	true	"Task ID"	format(uuid)
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{data=model.Task}
//	@Failure	404	{object}	serializer.Response
//	@Router		/tasks/{task_id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: task})
}

type UpdateTaskReq struct {
	Status      *string        `json:"status" example:"COMPLETED"`
	Priority    *string        `json:"priority" example:"HIGH"`
	Description *string        `json:"description"`
	Error       *string        `json:"error"`
	Result      datatypes.JSON `json:"result" swaggertype:"object"`
}

// UpdateTask godoc
//
//	@Summary		Update task
//	@Description	Update task fields. A status change must be allowed by the task lifecycle.
//	@Tags			task
//	@Accept			json
//	@Produce		json
//	@Param			task_id	path	string					true	"Task ID"	format(uuid)
//	@Param			payload	body	handler.UpdateTaskReq	true	"UpdateTask payload"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=model.Task}
//	@Failure		409	{object}	serializer.Response
//	@Router			/tasks/{task_id} [patch]
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	req := UpdateTaskReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	in := service.UpdateTaskInput{
		Description: req.Description,
		Error:       req.Error,
		Result:      req.Result,
	}
	if req.Status != nil {
		st, err := model.ParseTaskStatus(*req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid status", err))
			return
		}
		in.Status = &st
	}
	if req.Priority != nil {
		p, err := model.ParseTaskPriority(*req.Priority)
		if err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid priority", err))
			return
		}
		in.Priority = &p
	}

	task, err := h.svc.Update(c.Request.Context(), id, in)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: task})
}

// DeleteTask godoc
//
//	@Summary	Delete task
//	@Tags		task
//	@Produce	json
//	@Param		task_id	path	string	true	"Task ID"	format(uuid)
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{}
//	@Router		/tasks/{task_id} [delete]
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{})
}

// TakeoverTask godoc
//
//	@Summary		Take over task
//	@Description	Hand control of the task to the user. A running task moves to NEEDS_HELP.
//	@Tags			task
//	@Produce		json
//	@Param			task_id	path	string	true	"Task ID"	format(uuid)
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=model.Task}
//	@Failure		409	{object}	serializer.Response
//	@Router			/tasks/{task_id}/takeover [post]
func (h *TaskHandler) TakeoverTask(c *gin.Context) {
	h.control(c, h.svc.Takeover)
}

// ResumeTask godoc
//
//	@Summary		Resume task
//	@Description	Hand control back to the assistant and continue execution.
//	@Tags			task
//	@Produce		json
//	@Param			task_id	path	string	true	"Task ID"	format(uuid)
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=model.Task}
//	@Failure		409	{object}	serializer.Response
//	@Router			/tasks/{task_id}/resume [post]
func (h *TaskHandler) ResumeTask(c *gin.Context) {
	h.control(c, h.svc.Resume)
}

// CancelTask godoc
//
//	@Summary	Cancel task
//	@Tags		task
//	@Produce	json
//	@Param		task_id	path	string	true	"Task ID"	format(uuid)
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{data=model.Task}
//	@Failure	409	{object}	serializer.Response
//	@Router		/tasks/{task_id}/cancel [post]
func (h *TaskHandler) CancelTask(c *gin.Context) {
	h.control(c, h.svc.Cancel)
}

func (h *TaskHandler) control(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*model.Task, error)) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := op(c.Request.Context(), id)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: task})
}

// ListModels godoc
//
//	@Summary		List models
//	@Description	Every model the router knows, with availability under the current configuration
//	@Tags			task
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]ai.ModelInfo}
//	@Router			/tasks/models [get]
func (h *TaskHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.Response{Data: h.svc.Models()})
}

// CountTasks godoc
//
//	@Summary	Count tasks by status
//	@Tags		task
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{data=map[string]int64}
//	@Router		/tasks/counts [get]
func (h *TaskHandler) CountTasks(c *gin.Context) {
	counts, err := h.svc.Counts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	out := make(map[model.TaskStatus]int64, len(counts))
	for _, st := range model.AllTaskStatuses() {
		out[st] = counts[st]
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

type ListMessagesReq struct {
	Limit  int `form:"limit,default=100" json:"limit" binding:"min=1,max=500" example:"100"`
	Offset int `form:"offset,default=0" json:"offset" binding:"min=0" example:"0"`
}

// ListMessages godoc
//
//	@Summary		List task messages
//	@Description	Conversation of a task, oldest first
//	@Tags			task
//	@Produce		json
//	@Param			task_id	path	string	true	"Task ID"	format(uuid)
//	@Param			limit	query	integer	false	"Page size, default 100. Max 500."
//	@Param			offset	query	integer	false	"Offset"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]model.Message}
//	@Router			/tasks/{task_id}/messages [get]
func (h *TaskHandler) ListMessages(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	req := ListMessagesReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), id, req.Limit, req.Offset)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	c.JSON(http.StatusOK, serializer.Response{Data: msgs})
}

type MessagePageReq struct {
	Page  int `form:"page,default=1" json:"page" binding:"min=1" example:"1"`
	Limit int `form:"limit,default=10" json:"limit" binding:"min=1,max=100" example:"10"`
}

// ListRawMessages godoc
//
//	@Summary		List raw task messages
//	@Description	Stored conversation of a task, oldest first, paged
//	@Tags			task
//	@Produce		json
//	@Param			task_id	path	string	true	"Task ID"	format(uuid)
//	@Param			page	query	integer	false	"Page, starting at 1"
//	@Param			limit	query	integer	false	"Page size, default 10. Max 100."
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=serializer.ListData{items=[]model.Message}}
//	@Router			/tasks/{task_id}/messages/raw [get]
func (h *TaskHandler) ListRawMessages(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	req := MessagePageReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	msgs, total, err := h.svc.ListRawMessages(c.Request.Context(), id, req.Page, req.Limit)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	c.JSON(http.StatusOK, serializer.Response{Data: serializer.ListData{
		Items: msgs,
		Total: total,
		Page:  req.Page,
		Limit: req.Limit,
	}})
}

// ListProcessedMessages godoc
//
//	@Summary		List grouped task messages
//	@Description	One page of the conversation grouped for a chat view. Tool results are attributed to the assistant and operator actions are flagged with take_over.
//	@Tags			task
//	@Produce		json
//	@Param			task_id	path	string	true	"Task ID"	format(uuid)
//	@Param			page	query	integer	false	"Page, starting at 1"
//	@Param			limit	query	integer	false	"Page size, default 10. Max 100."
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]service.MessageGroup}
//	@Router			/tasks/{task_id}/messages/processed [get]
func (h *TaskHandler) ListProcessedMessages(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	req := MessagePageReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	groups, err := h.svc.ListProcessedMessages(c.Request.Context(), id, req.Page, req.Limit)
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	if groups == nil {
		groups = []service.MessageGroup{}
	}
	c.JSON(http.StatusOK, serializer.Response{Data: groups})
}

type AddMessageReq struct {
	Text    string               `json:"text" example:"The password is in the shared vault"`
	Content []model.ContentBlock `json:"content"`
}

// AddMessage godoc
//
//	@Summary		Add user message
//	@Description	Post a message to the task. A task waiting for the user resumes when the assistant holds control.
//	@Tags			task
//	@Accept			json
//	@Produce		json
//	@Param			task_id	path	string					true	"Task ID"	format(uuid)
//	@Param			payload	body	handler.AddMessageReq	true	"Either text or content blocks"
//	@Security		BearerAuth
//	@Success		201	{object}	serializer.Response{data=model.Message}
//	@Failure		409	{object}	serializer.Response
//	@Router			/tasks/{task_id}/messages [post]
func (h *TaskHandler) AddMessage(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	req := AddMessageReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	blocks := req.Content
	if text := strings.TrimSpace(req.Text); text != "" {
		blocks = append([]model.ContentBlock{model.NewTextBlock(text)}, blocks...)
	}
	if len(blocks) == 0 {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("text or content is required", nil))
		return
	}

	msg, err := h.svc.AddUserMessage(c.Request.Context(), id, blocks, callerID(c))
	if err != nil {
		writeTaskErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: msg})
}

func taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid task_id", err))
		return uuid.Nil, false
	}
	return id, true
}

func callerID(c *gin.Context) *uuid.UUID {
	ac := auth.FromContext(c)
	if ac == nil || ac.User == nil {
		return nil
	}
	id := ac.User.ID
	return &id
}

func writeTaskErr(c *gin.Context, err error) {
	var aerr *ai.Error
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.JSON(http.StatusNotFound, serializer.NotFoundErr("task not found"))
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, serializer.ConflictErr(err.Error(), err))
	case errors.Is(err, model.ErrIntegrity), errors.Is(err, service.ErrEmptyDescription):
		c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), err))
	case errors.As(err, &aerr):
		c.JSON(serializer.AIErr(err))
	default:
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
	}
}
