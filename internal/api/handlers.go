package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"filerelay/internal/logging"
	"filerelay/internal/models"
	"filerelay/internal/relay"
	"filerelay/internal/sender"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

type MailSender interface {
	Send(ctx context.Context, msg sender.MailMessage) (string, error)
}

type ChatSender interface {
	PostMessage(ctx context.Context, text string) (string, error)
	Upload(ctx context.Context, ts string, file *models.StagedFile) error
}

type DeliveryLog interface {
	Recent(ctx context.Context, limit int) ([]models.Delivery, error)
}

// Options carries the optional collaborators of a Handler. A nil sender
// leaves its route unregistered.
type Options struct {
	Mail       MailSender
	Chat       ChatSender
	Deliveries DeliveryLog
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// Handler wires HTTP routes to the relay service and downstream senders.
type Handler struct {
	relay      *relay.Service
	mail       MailSender
	chat       ChatSender
	deliveries DeliveryLog
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(service *relay.Service, opts Options) *Handler {
	return &Handler{
		relay:      service,
		mail:       opts.Mail,
		chat:       opts.Chat,
		deliveries: opts.Deliveries,
		gatherer:   opts.Gatherer,
		logger:     logging.OrNop(opts.Logger).Named("api"),
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/upload", h.upload)
	if h.mail != nil {
		router.POST("/mail", h.sendMail)
	}
	if h.chat != nil {
		router.POST("/slack", h.sendSlack)
	}
	router.GET("/healthz", h.health)
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	if h.deliveries != nil {
		router.GET("/deliveries", h.listDeliveries)
	}
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.relay.MaxFileSize()+formOverhead)
	if err := c.Request.ParseMultipartForm(h.relay.MaxFileSize()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		if _, ok := c.Request.MultipartForm.Value["file"]; ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "file field is not a file"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.relay.MaxFileSize() {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	content, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	handle, err := h.relay.Intake(c.Request.Context(), file.Filename, content)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"response": handle})
	case errors.Is(err, relay.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, relay.ErrEmptyFilename):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("stage upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stage file failed"})
	}
}

type deliveryRequest struct {
	UserID  string   `json:"user_id"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	Files   []string `json:"files"`
}

func bindDelivery(c *gin.Context) (deliveryRequest, bool) {
	var req deliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return req, false
	}
	if strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return req, false
	}
	return req, true
}

func (h *Handler) sendMail(c *gin.Context) {
	req, ok := bindDelivery(c)
	if !ok {
		return
	}

	var status string
	_, err := h.relay.DeliverBatch(c.Request.Context(), sender.DestinationMail, req.Files,
		func(ctx context.Context, files []*models.StagedFile) error {
			var err error
			status, err = h.mail.Send(ctx, sender.MailMessage{
				Subject:     "[" + req.UserID + "] " + req.Subject,
				Text:        req.Text,
				Attachments: files,
			})
			return err
		})
	if err != nil {
		body := gin.H{"error": err.Error(), "temporary": false}
		var sendErr *sender.SendError
		if errors.As(err, &sendErr) {
			body["temporary"] = sendErr.Temporary
			if sendErr.Code != 0 {
				body["code"] = sendErr.Code
			}
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": status})
}

func (h *Handler) sendSlack(c *gin.Context) {
	req, ok := bindDelivery(c)
	if !ok {
		return
	}
	if req.Subject == "" && req.Text == "" && len(req.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject, text or files required"})
		return
	}

	ts, err := h.chat.PostMessage(c.Request.Context(), "["+req.UserID+"] "+req.Subject+"\n\n"+req.Text)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if len(req.Files) == 0 {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	outcomes := h.relay.Dispatch(c.Request.Context(), sender.DestinationSlack, req.Files,
		func(ctx context.Context, file *models.StagedFile) error {
			return h.chat.Upload(ctx, ts, file)
		})
	c.JSON(http.StatusOK, outcomes)
}

func (h *Handler) health(c *gin.Context) {
	staged, capacity := h.relay.Staged()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"staged":   staged,
		"capacity": capacity,
		"mail":     h.mail != nil,
		"slack":    h.chat != nil,
	})
}

func (h *Handler) listDeliveries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	deliveries, err := h.deliveries.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list deliveries failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list deliveries failed"})
		return
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}
