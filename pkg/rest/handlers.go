package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llm-d-incubation/gemm-perf-model/internal/logger"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/config"
	"github.com/llm-d-incubation/gemm-perf-model/pkg/manager"
)

// Handlers for REST API calls

type handlers struct {
	manager *manager.Manager
	gpu     config.GPUSpec
	opts    config.ModelOptions
}

// Description of the served model
type ModelInfo struct {
	Name    string              `json:"name"`
	GPU     string              `json:"gpu"`
	Options config.ModelOptions `json:"options"`
}

func (h *handlers) predict(c *gin.Context) {
	var cfg config.GemmConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "invalid gemm config: " + err.Error()})
		return
	}
	record, err := h.manager.Predict(0, &cfg)
	if err != nil {
		logger.Log.Debugw("prediction rejected", "error", err)
		c.IndentedJSON(http.StatusUnprocessableEntity, gin.H{"message": "prediction error: " + err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, record)
}

func (h *handlers) predictBatch(c *gin.Context) {
	var rows []config.GemmConfig
	if err := c.ShouldBindJSON(&rows); err != nil {
		c.IndentedJSON(http.StatusBadRequest, gin.H{"message": "invalid gemm configs: " + err.Error()})
		return
	}
	records, err := h.manager.PredictAll(c.Request.Context(), rows)
	if err != nil {
		logger.Log.Debugw("batch rejected", "rows", len(rows), "error", err)
		c.IndentedJSON(http.StatusUnprocessableEntity, gin.H{"message": "prediction error: " + err.Error()})
		return
	}
	c.IndentedJSON(http.StatusOK, records)
}

func (h *handlers) getModel(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ModelInfo{
		Name:    h.manager.Model().Name(),
		GPU:     h.gpu.Name,
		Options: h.opts,
	})
}

func (h *handlers) getGPU(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, h.gpu)
}
