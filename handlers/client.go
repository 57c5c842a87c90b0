package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"client-directory/models"
	"client-directory/monitoring"
	"client-directory/utils"
)

// ClientHandler serves the directory over HTTP. The producer, cache and
// search index are optional and may be nil.
type ClientHandler struct {
	repo   models.Repository
	kafka  utils.KafkaProducer
	topic  string
	cache  utils.RedisClient
	search utils.ElasticsearchClient
	logger *log.Logger

	pending sync.WaitGroup
}

type Option func(*ClientHandler)

func WithKafka(producer utils.KafkaProducer, topic string) Option {
	return func(h *ClientHandler) {
		h.kafka = producer
		h.topic = topic
	}
}

func WithCache(cache utils.RedisClient) Option {
	return func(h *ClientHandler) { h.cache = cache }
}

func WithSearch(search utils.ElasticsearchClient) Option {
	return func(h *ClientHandler) { h.search = search }
}

func WithLogger(logger *log.Logger) Option {
	return func(h *ClientHandler) { h.logger = logger }
}

func NewClientHandler(repo models.Repository, opts ...Option) *ClientHandler {
	h := &ClientHandler{
		repo:   repo,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ClientHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/health", h.Health)

	clients := api.Group("/clients")
	clients.GET("", h.FindClients)
	clients.POST("", h.CreateClient)
	clients.GET("/search", h.SearchClients)
	clients.GET("/:id", h.GetClient)
	clients.PATCH("/:id", h.UpdateClient)
	clients.DELETE("/:id", h.DeleteClient)
	clients.POST("/:id/phones", h.AddPhone)
	clients.DELETE("/:id/phones/:phone", h.DeletePhone)
}

type CreateClientRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required"`
}

// UpdateClientRequest fields left out or empty are not changed. Phone
// replaces every number the client has.
type UpdateClientRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

type AddPhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *ClientHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	details := gin.H{"database": "available"}
	status := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		details["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		details["redis"] = "available"
		if err := h.cache.Ping(ctx); err != nil {
			details["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		c.JSON(status, gin.H{"status": "degraded", "details": details})
		return
	}
	c.JSON(status, gin.H{"status": "ok", "details": details})
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.repo.AddClient(c.Request.Context(), req.FirstName, req.LastName, req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(models.ClientEvent{Event: models.EventClientCreated, ClientID: client.ID})
	c.JSON(http.StatusCreated, models.NewClientDocument(client, nil))
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	id, ok := parseClientID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if doc, ok := h.cachedDocument(ctx, id); ok {
		c.JSON(http.StatusOK, doc)
		return
	}

	doc, err := h.loadDocument(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.cacheDocument(ctx, doc)

	c.JSON(http.StatusOK, doc)
}

func (h *ClientHandler) UpdateClient(c *gin.Context) {
	id, ok := parseClientID(c)
	if !ok {
		return
	}

	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if _, err := h.repo.GetClient(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}

	update := models.ClientUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if err := h.repo.UpdateClient(ctx, id, update); err != nil {
		h.respondError(c, err)
		return
	}
	h.evict(ctx, id)

	doc, err := h.loadDocument(ctx, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if !update.IsEmpty() {
		h.publish(models.ClientEvent{Event: models.EventClientUpdated, ClientID: id})
	}
	c.JSON(http.StatusOK, doc)
}

func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id, ok := parseClientID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.repo.DeleteClient(ctx, id); err != nil {
		h.respondError(c, err)
		return
	}
	h.evict(ctx, id)

	h.publish(models.ClientEvent{Event: models.EventClientDeleted, ClientID: id})
	c.Status(http.StatusNoContent)
}

func (h *ClientHandler) AddPhone(c *gin.Context) {
	id, ok := parseClientID(c)
	if !ok {
		return
	}

	var req AddPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	phone, err := h.repo.AddPhone(ctx, id, req.Phone)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.evict(ctx, id)

	h.publish(models.ClientEvent{Event: models.EventPhoneAdded, ClientID: id, Phone: req.Phone})
	c.JSON(http.StatusCreated, phone)
}

func (h *ClientHandler) DeletePhone(c *gin.Context) {
	id, ok := parseClientID(c)
	if !ok {
		return
	}
	phone := c.Param("phone")
	ctx := c.Request.Context()

	if err := h.repo.DeletePhone(ctx, id, phone); err != nil {
		h.respondError(c, err)
		return
	}
	h.evict(ctx, id)

	h.publish(models.ClientEvent{Event: models.EventPhoneDeleted, ClientID: id, Phone: phone})
	c.Status(http.StatusNoContent)
}

// FindClients filters the clients/phones join by query parameters. Only
// parameters present in the query take part; mode=all requires every one
// of them to match.
func (h *ClientHandler) FindClients(c *gin.Context) {
	filter := models.ClientFilter{}
	if v, ok := c.GetQuery("first_name"); ok {
		filter.FirstName = &v
	}
	if v, ok := c.GetQuery("last_name"); ok {
		filter.LastName = &v
	}
	if v, ok := c.GetQuery("email"); ok {
		filter.Email = &v
	}
	if v, ok := c.GetQuery("phone"); ok {
		filter.Phone = &v
	}
	switch c.DefaultQuery("mode", "any") {
	case "any":
		filter.Mode = models.MatchAny
	case "all":
		filter.Mode = models.MatchAll
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be 'any' or 'all'"})
		return
	}

	contacts, err := h.repo.FindClients(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *ClientHandler) SearchClients(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search index is not configured"})
		return
	}
	text := c.Query("q")
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	docs, err := h.search.SearchClients(c.Request.Context(), text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// helpers

func (h *ClientHandler) loadDocument(ctx context.Context, id uint) (models.ClientDocument, error) {
	client, err := h.repo.GetClient(ctx, id)
	if err != nil {
		return models.ClientDocument{}, err
	}
	phones, err := h.repo.ListPhones(ctx, id)
	if err != nil {
		return models.ClientDocument{}, err
	}
	return models.NewClientDocument(client, phones), nil
}

func (h *ClientHandler) cachedDocument(ctx context.Context, id uint) (models.ClientDocument, bool) {
	var doc models.ClientDocument
	if h.cache == nil {
		return doc, false
	}

	raw, err := h.cache.GetFromCache(ctx, utils.ClientCacheKey(id))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			h.logger.Printf("Failed to read client %d from cache: %v", id, err)
		}
		return doc, false
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		h.logger.Printf("Discarding malformed cache entry for client %d: %v", id, err)
		return doc, false
	}
	return doc, true
}

func (h *ClientHandler) cacheDocument(ctx context.Context, doc models.ClientDocument) {
	if h.cache == nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		h.logger.Printf("Failed to marshal client %d: %v", doc.ID, err)
		return
	}
	if err := h.cache.SetToCache(ctx, utils.ClientCacheKey(doc.ID), string(raw), utils.ClientCacheTTL); err != nil {
		h.logger.Printf("Failed to cache client %d: %v", doc.ID, err)
	}
}

func (h *ClientHandler) evict(ctx context.Context, id uint) {
	if h.cache == nil {
		return
	}
	if err := h.cache.DeleteFromCache(ctx, utils.ClientCacheKey(id)); err != nil {
		h.logger.Printf("Failed to evict client %d from cache: %v", id, err)
	}
}

func (h *ClientHandler) publish(event models.ClientEvent) {
	if h.kafka == nil {
		return
	}
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		result := "sent"
		if err := utils.PublishClientEvent(ctx, h.kafka, h.topic, event); err != nil {
			result = "failed"
			h.logger.Printf("Failed to publish %s for client %d: %v", event.Event, event.ClientID, err)
		}
		monitoring.ClientEventsTotal.WithLabelValues(event.Event, result).Inc()
	}()
}

// Wait blocks until every event handed to the producer has been sent or
// has failed. Call it before closing the producer.
func (h *ClientHandler) Wait() {
	h.pending.Wait()
}

func (h *ClientHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
	case errors.Is(err, models.ErrForeignKeyViolation):
		c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
	case errors.Is(err, models.ErrUniqueViolation):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseClientID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID format"})
		return 0, false
	}
	return uint(id), true
}
