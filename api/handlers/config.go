package handlers

import (
	"net/http"

	"github.com/BaSui01/stepflow/config"
)

// ConfigHandler 只读配置端点
type ConfigHandler struct {
	cfg *config.Config
}

// NewConfigHandler 创建配置处理器
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// HandleConfig 处理 GET /api/v1/config，敏感字段已脱敏
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.cfg.Redacted())
}
