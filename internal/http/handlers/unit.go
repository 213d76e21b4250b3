package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lmpstore-backend/internal/http/response"
	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/services"
)

type UnitHandler struct {
	log   *logger.Logger
	store services.StoreService
}

func NewUnitHandler(log *logger.Logger, store services.StoreService) *UnitHandler {
	return &UnitHandler{log: log.With("handler", "UnitHandler"), store: store}
}

type writeUnitRequest struct {
	LMP  services.WriteUnitInput `json:"lmp"`
	Uses json.RawMessage         `json:"uses"`
}

// parseUses accepts both wire shapes for the uses relation: a map of
// unit id to opaque placeholder, or a plain list of unit ids. The map
// values carry no meaning and are dropped.
func parseUses(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		ids := make([]string, 0, len(asMap))
		for id := range asMap {
			ids = append(ids, id)
		}
		return ids, nil
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, err
	}
	return asList, nil
}

func (h *UnitHandler) Write(c *gin.Context) {
	var req writeUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	uses, err := parseUses(req.Uses)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation_error", err)
		return
	}
	unit, err := h.store.WriteUnit(c.Request.Context(), req.LMP, uses)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lmp_id": unit.ID})
}

func (h *UnitHandler) Get(c *gin.Context) {
	view, err := h.store.GetUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, view)
}

func (h *UnitHandler) GetUses(c *gin.Context) {
	usesIDs, err := h.store.GetUnitUses(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"uses": usesIDs})
}

func (h *UnitHandler) GetInvocations(c *gin.Context) {
	views, err := h.store.ListInvocationsByUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"invocations": views})
}

// List serves /lmps?name=...: all versions of a name in version order,
// or just the latest one with ?latest=true.
func (h *UnitHandler) List(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if strings.EqualFold(c.Query("latest"), "true") {
		view, err := h.store.GetLatestUnit(c.Request.Context(), name)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		response.RespondOK(c, view)
		return
	}
	units, err := h.store.ListUnitVersions(c.Request.Context(), name)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lmps": units})
}
