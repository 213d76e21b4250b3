package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lmpstore-backend/internal/http/response"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/services"
)

type InvocationHandler struct {
	log   *logger.Logger
	store services.StoreService
}

func NewInvocationHandler(log *logger.Logger, store services.StoreService) *InvocationHandler {
	return &InvocationHandler{log: log.With("handler", "InvocationHandler"), store: store}
}

type writeInvocationRequest struct {
	Invocation services.WriteInvocationInput `json:"invocation"`
	Results    []services.ResultInput        `json:"results"`
	Consumes   []string                      `json:"consumes"`
}

func (h *InvocationHandler) Write(c *gin.Context) {
	var req writeInvocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	if err := h.store.WriteInvocation(c.Request.Context(), req.Invocation, req.Results, req.Consumes); err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Invocation written successfully"})
}

func (h *InvocationHandler) Get(c *gin.Context) {
	view, err := h.store.GetInvocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, view)
}
