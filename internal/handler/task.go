package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/service"
)

// TaskHandler serves /tasks.  Ownership is enforced by the service.
type TaskHandler struct {
	Tasks *service.TaskService
}

func NewTaskHandler(tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{Tasks: tasks}
}

type createTaskReq struct {
	Title       string   `json:"title" validate:"required,min=3,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Status      *string  `json:"status" validate:"omitnil,oneof=pending in-progress completed"`
	Priority    *string  `json:"priority" validate:"omitnil,oneof=low medium high"`
	DueDate     *string  `json:"dueDate" validate:"omitempty,isodate,notpast"`
	Tags        []string `json:"tags" validate:"omitempty,max=20"`
}

type updateTaskReq struct {
	Title       *string  `json:"title" validate:"omitnil,min=3,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	Status      *string  `json:"status" validate:"omitnil,oneof=pending in-progress completed"`
	Priority    *string  `json:"priority" validate:"omitnil,oneof=low medium high"`
	DueDate     *string  `json:"dueDate" validate:"omitempty,isodate,notpast"`
	Tags        []string `json:"tags" validate:"omitempty,max=20"`
}

type listTasksReq struct {
	Status   string `query:"status" validate:"omitempty,oneof=pending in-progress completed"`
	Priority string `query:"priority" validate:"omitempty,oneof=low medium high"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	Limit    int    `query:"limit" validate:"omitempty,min=1"`
	Sort     string `query:"sort"`
}

// taskFields converts the shared request fields.  An empty dueDate clears it.
func taskFields(title, description, status, priority, dueDate *string, tags []string) service.TaskFields {
	f := service.TaskFields{Title: title, Description: description}
	if status != nil {
		s := model.TaskStatus(*status)
		f.Status = &s
	}
	if priority != nil {
		p := model.Priority(*priority)
		f.Priority = &p
	}
	if dueDate != nil {
		f.DueDateSet = true
		if *dueDate != "" {
			if t, err := parseDate(*dueDate); err == nil {
				f.DueDate = &t
			}
		}
	}
	if tags != nil {
		f.Tags, f.TagsSet = tags, true
	}
	return f
}

func (h *TaskHandler) List(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	var req listTasksReq
	if err := bindAndValidate(c, &req, func(r *listTasksReq) {
		r.Status = strings.TrimSpace(r.Status)
		r.Priority = strings.TrimSpace(r.Priority)
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tasks, pg, err := h.Tasks.List(ctx, who, service.TaskListQuery{
		Status:   model.TaskStatus(req.Status),
		Priority: model.Priority(req.Priority),
		Page:     req.Page,
		Limit:    req.Limit,
		Sort:     req.Sort,
	})
	if err != nil {
		return err
	}
	return successPage(c, http.StatusOK, len(tasks), pg, echo.Map{"tasks": tasks})
}

func (h *TaskHandler) Stats(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.Tasks.Stats(ctx, who)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"stats": stats})
}

func (h *TaskHandler) Get(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	task, err := h.Tasks.Get(ctx, who, id)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "", echo.Map{"task": task})
}

func (h *TaskHandler) Create(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	var req createTaskReq
	if err := bindAndValidate(c, &req, func(r *createTaskReq) {
		r.Title = strings.TrimSpace(r.Title)
		trimPtr(r.Description)
		trimPtr(r.DueDate)
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	task, err := h.Tasks.Create(ctx, who,
		taskFields(&req.Title, req.Description, req.Status, req.Priority, req.DueDate, req.Tags))
	if err != nil {
		return err
	}
	return success(c, http.StatusCreated, "Task created successfully", echo.Map{"task": task})
}

func (h *TaskHandler) Update(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateTaskReq
	if err := bindAndValidate(c, &req, func(r *updateTaskReq) {
		trimPtr(r.Title)
		trimPtr(r.Description)
		trimPtr(r.DueDate)
	}); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	task, err := h.Tasks.Update(ctx, who, id,
		taskFields(req.Title, req.Description, req.Status, req.Priority, req.DueDate, req.Tags))
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task updated successfully", echo.Map{"task": task})
}

func (h *TaskHandler) Delete(c echo.Context) error {
	who, err := identity(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Tasks.Delete(ctx, who, id); err != nil {
		return err
	}
	return success(c, http.StatusOK, "Task deleted successfully", nil)
}
