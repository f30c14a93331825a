package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/internal/service/reviewable"
	"github.com/openagora/agora/pkg/errors"
	"github.com/openagora/agora/pkg/utils"
)

// Server exposes the review engine over HTTP.
type Server struct {
	svc    *reviewable.Service
	log    *zap.Logger
	engine *gin.Engine
}

// NewServer builds the router. jwtSecret guards every /api route; /healthz
// and /metrics stay open for the platform's probes and scraper.
func NewServer(svc *reviewable.Service, jwtSecret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{svc: svc, log: log.With(zap.String("component", "http"))}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestIDMiddleware())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/review", AuthMiddleware(jwtSecret, s.log))
	api.GET("", s.list)
	api.GET("/pending_count", s.pendingCount)
	api.GET("/target/:type/:target_id", s.getByTarget)
	api.POST("/flag", s.flag)
	api.POST("/bulk", s.bulkPerform)
	api.GET("/:id", s.get)
	api.PUT("/:id", s.edit)
	api.GET("/:id/history", s.history)
	api.GET("/:id/contributions", s.contributions)
	api.GET("/:id/actions", s.actions)
	api.POST("/:id/score", s.score)
	api.POST("/:id/perform/:action", s.perform)

	s.engine = engine
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) list(c *gin.Context) {
	q := reviewable.ListQuery{}
	if v := c.Query("status"); v != "" {
		status := reviewable.Status(v)
		if !status.Valid() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown status"})
			return
		}
		q.Status = &status
	}
	if v := c.Query("target_type"); v != "" {
		t := repository.TargetType(v)
		q.TargetType = &t
	}
	if v := c.Query("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "min_score must be a number"})
			return
		}
		q.MinScore = &f
	}
	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := s.svc.List(c.Request.Context(), actorFrom(c), q)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": itemViews(items), "total": total})
}

func (s *Server) pendingCount(c *gin.Context) {
	count, err := s.svc.PendingCount(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": count})
}

func (s *Server) get(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	item, err := s.svc.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemView(item))
}

func (s *Server) getByTarget(c *gin.Context) {
	targetID, err := strconv.ParseInt(c.Param("target_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid target id"})
		return
	}
	item, err := s.svc.GetByTarget(c.Request.Context(), actorFrom(c),
		repository.TargetType(c.Param("type")), targetID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemView(item))
}

type flagRequest struct {
	TargetType string                 `json:"target_type" binding:"required"`
	TargetID   int64                  `json:"target_id" binding:"required"`
	Variant    string                 `json:"variant" binding:"required"`
	Kind       string                 `json:"kind"`
	TookAction bool                   `json:"took_action"`
	Payload    map[string]interface{} `json:"payload"`
	GroupID    *int64                 `json:"group_id"`
	CategoryID *int64                 `json:"category_id"`
}

func (s *Server) flag(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	item, err := s.svc.NeedsReview(c.Request.Context(), reviewable.NeedsReviewRequest{
		TargetType: repository.TargetType(req.TargetType),
		TargetID:   req.TargetID,
		Variant:    reviewable.VariantKind(req.Variant),
		Actor:      actorFrom(c),
		Kind:       req.Kind,
		TookAction: req.TookAction,
		Payload:    req.Payload,
		GroupID:    req.GroupID,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, itemView(item))
}

type scoreRequest struct {
	Kind       string `json:"kind" binding:"required"`
	TookAction bool   `json:"took_action"`
}

func (s *Server) score(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	item, err := s.svc.AddScore(c.Request.Context(), id, actorFrom(c), req.Kind, req.TookAction)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemView(item))
}

type performRequest struct {
	Version *int64                 `json:"version"`
	Args    map[string]interface{} `json:"args"`
}

func (s *Server) perform(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	var req performRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	item, result, err := s.svc.Perform(c.Request.Context(), id, c.Param("action"), actorFrom(c), req.Version, req.Args)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":   itemView(item),
		"action": result.ActionID,
		"detail": result.Detail,
	})
}

type editRequest struct {
	Version *int64                 `json:"version"`
	Delta   map[string]interface{} `json:"delta" binding:"required"`
}

func (s *Server) edit(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	item, err := s.svc.Edit(c.Request.Context(), id, actorFrom(c), req.Version, req.Delta)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemView(item))
}

type bulkRequest struct {
	IDs    []string               `json:"ids" binding:"required"`
	Action string                 `json:"action" binding:"required"`
	Args   map[string]interface{} `json:"args"`
}

func (s *Server) bulkPerform(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid item id " + raw})
			return
		}
		ids = append(ids, id)
	}

	outcomes := s.svc.BulkPerform(c.Request.Context(), ids, req.Action, actorFrom(c), req.Args)
	results := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		entry := gin.H{"id": o.ID.String()}
		if o.Err != nil {
			entry["error"] = o.Err.Error()
		} else {
			entry["status"] = string(o.Item.Status)
			entry["version"] = o.Item.Version
		}
		results = append(results, entry)
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) history(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	entries, err := s.svc.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	views := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		views = append(views, gin.H{
			"type":         string(e.Type),
			"status":       string(e.Status),
			"performed_by": e.PerformedByID,
			"edit_delta":   e.EditDelta,
			"created_at":   e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": views})
}

func (s *Server) contributions(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	contributions, err := s.svc.Contributions(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	views := make([]gin.H, 0, len(contributions))
	for _, sc := range contributions {
		views = append(views, gin.H{
			"actor_id":    sc.ActorID,
			"kind":        sc.Kind,
			"weight":      sc.Weight,
			"resolution":  string(sc.Resolution),
			"took_action": sc.TookAction,
			"created_at":  sc.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"contributions": views})
}

func (s *Server) actions(c *gin.Context) {
	id, ok := s.itemID(c)
	if !ok {
		return
	}
	descriptors, err := s.svc.Actions(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": descriptors})
}

func (s *Server) itemID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid item id"})
		return uuid.Nil, false
	}
	return id, true
}

// renderError maps the engine's failure taxonomy onto HTTP statuses.
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errors.ErrUpdateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrInvalidAction), errors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrNotFound), errors.Is(err, errors.ErrTargetNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		fields := []zap.Field{zap.Error(err)}
		for k, v := range utils.GetContextFields(c.Request.Context()) {
			fields = append(fields, zap.Any(k, v))
		}
		s.log.Error("request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func itemView(item *reviewable.Reviewable) gin.H {
	return gin.H{
		"id":                     item.ID.String(),
		"target_type":            string(item.TargetType),
		"target_id":              item.TargetID,
		"variant":                string(item.Variant),
		"status":                 string(item.Status),
		"version":                item.Version,
		"score":                  item.Score,
		"reviewable_by_group_id": item.ReviewableByGroupID,
		"category_id":            item.CategoryID,
		"payload":                item.Payload,
		"created_by":             item.CreatedByID,
		"created_at":             item.CreatedAt,
		"updated_at":             item.UpdatedAt,
	}
}

func itemViews(items []*reviewable.Reviewable) []gin.H {
	views := make([]gin.H, 0, len(items))
	for _, item := range items {
		views = append(views, itemView(item))
	}
	return views
}
