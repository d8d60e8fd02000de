package controller

import (
	"context"
	"strconv"

	"vigia_backend/internal/model"
	"vigia_backend/internal/service"
	"vigia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TrackProgressService is the part of service.TrackProgressService used over HTTP.
type TrackProgressService interface {
	StartTrackProgress(ctx context.Context, participationID, trackCycleID uint) (*model.TrackProgress, error)
	GetTrackProgress(ctx context.Context, trackProgressID uint) (*model.TrackProgress, error)
	UpdateSequenceProgress(ctx context.Context, trackProgressID, sequenceID uint, update service.SequenceProgressUpdate) (*model.SequenceProgress, error)
	RecalculateTrackProgress(ctx context.Context, trackProgressID uint) (*model.TrackProgress, error)
	CompleteContentSequence(ctx context.Context, trackProgressID, sequenceID uint) (*model.SequenceProgress, error)
	CompleteQuizSequence(ctx context.Context, trackProgressID, sequenceID, quizSubmissionID uint) (*model.SequenceProgress, error)
	CanAccessSequence(ctx context.Context, participationID, trackCycleID, sequenceID uint) (service.AccessDecision, error)
	GetSequenceLocks(ctx context.Context, trackProgressID uint) (map[uint]bool, error)
	GetMandatoryCompliance(ctx context.Context, participationID, requestingUserID uint) (*service.ComplianceReport, error)
}

// TrackProgressController 处理学习路径进度相关的API请求
type TrackProgressController struct {
	Service TrackProgressService
}

func NewTrackProgressController(svc TrackProgressService) *TrackProgressController {
	return &TrackProgressController{Service: svc}
}

// StartTrackProgressRequest
// swagger:model StartTrackProgressRequest
type StartTrackProgressRequest struct {
	ParticipationID uint `json:"participationId" binding:"required"`
	TrackCycleID    uint `json:"trackCycleId" binding:"required"`
}

// CompleteQuizSequenceRequest
// swagger:model CompleteQuizSequenceRequest
type CompleteQuizSequenceRequest struct {
	QuizSubmissionID uint `json:"quizSubmissionId" binding:"required"`
}

// pathID reads a positive integer path parameter, answering 400 when it is not one.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// Start godoc
// @Summary 开始学习路径
// @Description Enroll a participation in a track cycle
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body StartTrackProgressRequest true "participation and cycle"
// @Success 201 {object} util.Response{data=model.TrackProgress}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 422 {object} util.Response
// @Router /api/track-progress [post]
func (c *TrackProgressController) Start(ctx *gin.Context) {
	var req StartTrackProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tp, err := c.Service.StartTrackProgress(ctx.Request.Context(), req.ParticipationID, req.TrackCycleID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Created(ctx, tp)
}

// Get godoc
// @Summary 获取学习路径进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Success 200 {object} util.Response{data=model.TrackProgress}
// @Failure 404 {object} util.Response
// @Router /api/track-progress/{id} [get]
func (c *TrackProgressController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	tp, err := c.Service.GetTrackProgress(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, tp)
}

// Recalculate godoc
// @Summary 重新计算进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Success 200 {object} util.Response{data=model.TrackProgress}
// @Router /api/track-progress/{id}/recalculate [post]
func (c *TrackProgressController) Recalculate(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	tp, err := c.Service.RecalculateTrackProgress(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, tp)
}

// Locks godoc
// @Summary 获取小节锁定状态
// @Description Map of sequence id to locked flag
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Success 200 {object} util.Response{data=map[string]bool}
// @Router /api/track-progress/{id}/locks [get]
func (c *TrackProgressController) Locks(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	locks, err := c.Service.GetSequenceLocks(ctx.Request.Context(), id)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"locks": locks})
}

// UpdateSequence godoc
// @Summary 更新小节进度
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Param sequenceId path int true "sequence id"
// @Param request body service.SequenceProgressUpdate true "fields to change"
// @Success 200 {object} util.Response{data=model.SequenceProgress}
// @Failure 422 {object} util.Response
// @Router /api/track-progress/{id}/sequences/{sequenceId} [patch]
func (c *TrackProgressController) UpdateSequence(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sequenceID, ok := pathID(ctx, "sequenceId")
	if !ok {
		return
	}
	var update service.SequenceProgressUpdate
	if err := ctx.ShouldBindJSON(&update); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sp, err := c.Service.UpdateSequenceProgress(ctx.Request.Context(), id, sequenceID, update)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sp)
}

// CompleteContent godoc
// @Summary 完成内容小节
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Param sequenceId path int true "sequence id"
// @Success 200 {object} util.Response{data=model.SequenceProgress}
// @Router /api/track-progress/{id}/sequences/{sequenceId}/complete [post]
func (c *TrackProgressController) CompleteContent(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sequenceID, ok := pathID(ctx, "sequenceId")
	if !ok {
		return
	}
	sp, err := c.Service.CompleteContentSequence(ctx.Request.Context(), id, sequenceID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sp)
}

// CompleteQuiz godoc
// @Summary 完成测验小节
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "track progress id"
// @Param sequenceId path int true "sequence id"
// @Param request body CompleteQuizSequenceRequest true "submission"
// @Success 200 {object} util.Response{data=model.SequenceProgress}
// @Router /api/track-progress/{id}/sequences/{sequenceId}/complete-quiz [post]
func (c *TrackProgressController) CompleteQuiz(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	sequenceID, ok := pathID(ctx, "sequenceId")
	if !ok {
		return
	}
	var req CompleteQuizSequenceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	sp, err := c.Service.CompleteQuizSequence(ctx.Request.Context(), id, sequenceID, req.QuizSubmissionID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, sp)
}

// CanAccess godoc
// @Summary 检查小节是否可访问
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "participation id"
// @Param cycleId path int true "track cycle id"
// @Param sequenceId path int true "sequence id"
// @Success 200 {object} util.Response{data=service.AccessDecision}
// @Router /api/participations/{id}/cycles/{cycleId}/sequences/{sequenceId}/access [get]
func (c *TrackProgressController) CanAccess(ctx *gin.Context) {
	participationID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	cycleID, ok := pathID(ctx, "cycleId")
	if !ok {
		return
	}
	sequenceID, ok := pathID(ctx, "sequenceId")
	if !ok {
		return
	}
	decision, err := c.Service.CanAccessSequence(ctx.Request.Context(), participationID, cycleID, sequenceID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, decision)
}

// Compliance godoc
// @Summary 必修路径完成情况
// @Description Mandatory track compliance of the caller's participation
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "participation id"
// @Success 200 {object} util.Response{data=service.ComplianceReport}
// @Failure 403 {object} util.Response
// @Router /api/participations/{id}/compliance [get]
func (c *TrackProgressController) Compliance(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	participationID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	report, err := c.Service.GetMandatoryCompliance(ctx.Request.Context(), participationID, user.UserID)
	if err != nil {
		util.HandleServiceError(ctx, err)
		return
	}
	util.Success(ctx, report)
}
