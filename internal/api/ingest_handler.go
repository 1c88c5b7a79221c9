package api

import (
	"net/http"

	"TenhouSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IngestHandler 采集入口：无论内部失败属于哪一类，对外都是统一的{ok,message}
type IngestHandler struct {
	ingest *service.IngestionService
	logger *logrus.Logger
}

func NewIngestHandler(ingest *service.IngestionService, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{ingest: ingest, logger: logger}
}

// ingestLogRequest 单牌谱上传的可选请求体
type ingestLogRequest struct {
	UploadUserID *uint64 `json:"upload_user_id"` // 上传者，可空
}

// IngestLogHandler 按ref采集一局牌谱
// @Router /api/logs/{ref}/ingest [post]
func (h *IngestHandler) IngestLogHandler(c *gin.Context) {
	ref := c.Param("ref")
	var req ingestLogRequest
	_ = c.ShouldBindJSON(&req) // 请求体可空

	outcome := h.ingest.IngestLog(c.Request.Context(), ref, req.UploadUserID)
	c.JSON(statusFor(outcome), outcome)
}

// SyncRecordsHandler 按玩家名批量同步战绩流水
// @Router /api/players/{name}/records/sync [post]
func (h *IngestHandler) SyncRecordsHandler(c *gin.Context) {
	name := c.Param("name")
	outcome := h.ingest.IngestRecords(c.Request.Context(), name)
	c.JSON(statusFor(outcome), outcome)
}

// statusFor 失败分类只影响状态码，响应体形态不变
func statusFor(outcome service.Outcome) int {
	if outcome.OK {
		return http.StatusOK
	}
	switch outcome.Kind {
	case service.KindInvalidReference:
		return http.StatusBadRequest
	case service.KindThrottled:
		return http.StatusTooManyRequests
	case service.KindPlayerNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
