package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mare-review-api/internal/application/review"
	"mare-review-api/internal/interfaces/http/dto"
)

// ModelsHandler 模型列表处理器
// 对外的"模型"即已注册的评论角色，列表在进程启动时固定。
type ModelsHandler struct {
	registry *review.Registry
	created  int64
	ownedBy  string
}

// NewModelsHandler 创建模型列表处理器
func NewModelsHandler(registry *review.Registry, ownedBy string) *ModelsHandler {
	return &ModelsHandler{
		registry: registry,
		created:  time.Now().Unix(),
		ownedBy:  ownedBy,
	}
}

// List 处理 GET /v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	names := h.registry.Names()
	data := make([]dto.ModelObject, 0, len(names))
	for _, name := range names {
		data = append(data, dto.ModelObject{
			ID:      name,
			Object:  "model",
			Created: h.created,
			OwnedBy: h.ownedBy,
		})
	}

	c.JSON(http.StatusOK, dto.ModelList{
		Object: "list",
		Data:   data,
	})
}
