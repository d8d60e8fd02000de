package controller

import (
	"context"
	"strconv"

	"vigia_backend/internal/model"
	"vigia_backend/internal/service"
	"vigia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizSubmissionService interface {
	CreateQuizSubmission(ctx context.Context, in service.CreateQuizSubmissionInput) (*model.QuizSubmission, error)
	UpdateQuizSubmission(ctx context.Context, id uint, in service.UpdateQuizSubmissionInput) (*model.QuizSubmission, error)
	GetQuizSubmission(ctx context.Context, id uint) (*model.QuizSubmission, error)
	ListQuizSubmissions(ctx context.Context, participationID, formVersionID uint) ([]model.QuizSubmission, error)
}

// QuizSubmissionController 处理测验提交相关的API请求
type QuizSubmissionController struct {
	Service QuizSubmissionService
}

func NewQuizSubmissionController(svc QuizSubmissionService) *QuizSubmissionController {
	return &QuizSubmissionController{Service: svc}
}

// Create godoc
// @Summary 提交测验
// @Description Create a quiz attempt; graded when completedAt is present
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateQuizSubmissionInput true "attempt"
// @Success 201 {object} util.Response{data=model.QuizSubmission}
// @Failure 404 {object} util.Response
// @Failure 422 {object} util.Response "attempt or time limit reached"
// @Router /api/quiz-submissions [post]
func (c *QuizSubmissionController) Create(ctx *gin.Context) {
	var in service.CreateQuizSubmissionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.Service.CreateQuizSubmission(ctx.Request.Context(), in)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// Update godoc
// @Summary 更新测验提交
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "submission id"
// @Param request body service.UpdateQuizSubmissionInput true "fields to change"
// @Success 200 {object} util.Response{data=model.QuizSubmission}
// @Router /api/quiz-submissions/{id} [patch]
func (c *QuizSubmissionController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var in service.UpdateQuizSubmissionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sub, err := c.Service.UpdateQuizSubmission(ctx.Request.Context(), id, in)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// Get godoc
// @Summary 获取测验提交
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "submission id"
// @Success 200 {object} util.Response{data=model.QuizSubmission}
// @Router /api/quiz-submissions/{id} [get]
func (c *QuizSubmissionController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sub, err := c.Service.GetQuizSubmission(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// List godoc
// @Summary 测验提交列表
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param participationId query int true "participation id"
// @Param formVersionId query int true "form version id"
// @Success 200 {object} util.Response{data=[]model.QuizSubmission}
// @Router /api/quiz-submissions [get]
func (c *QuizSubmissionController) List(ctx *gin.Context) {
	participationID, err1 := strconv.ParseUint(ctx.Query("participationId"), 10, 32)
	formVersionID, err2 := strconv.ParseUint(ctx.Query("formVersionId"), 10, 32)
	if err1 != nil || err2 != nil {
		util.BadRequest(ctx, "participationId and formVersionId are required")
		return
	}
	rows, err := c.Service.ListQuizSubmissions(ctx.Request.Context(), uint(participationID), uint(formVersionID))
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"submissions": rows})
}
