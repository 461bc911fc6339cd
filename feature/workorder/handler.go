package workorder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"order-sync/core/logger"
)

// Handler handles HTTP requests for work-order ingestion and sync.
type Handler struct {
	service  *Service
	ingestor *Ingestor
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, ingestor *Ingestor, log *zap.Logger) *Handler {
	return &Handler{service: service, ingestor: ingestor, logger: log}
}

// RegisterRoutes registers the work-order routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/workorders")
	group.Post("/upload", h.HandleUpload)
	group.Post("/sync", h.HandleSync)
	group.Get("/preview/:product", h.HandlePreview)
}

// HandleUpload ingests an uploaded work-order export workbook.
func (h *Handler) HandleUpload(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing multipart field 'file'",
		})
	}

	tmp := filepath.Join(os.TempDir(), filepath.Base(fh.Filename))
	if err := c.SaveFile(fh, tmp); err != nil {
		l.Error("failed to stage upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer os.Remove(tmp)

	res, err := h.ingestor.IngestFile(c.Context(), tmp)
	if err != nil {
		l.Error("ingestion failed", zap.String("file", fh.Filename), zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"batch_id":  res.BatchID,
		"file_hash": res.FileHash,
		"rows":      res.Rows,
		"skipped":   res.Skipped,
	})
}

// HandleSync reconciles one or more products. Products come as a
// comma-separated query parameter; empty means every stored product.
func (h *Handler) HandleSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var products []string
	if q := strings.TrimSpace(c.Query("products")); q != "" {
		for _, p := range strings.Split(q, ",") {
			if p = strings.TrimSpace(p); p != "" {
				products = append(products, p)
			}
		}
	}

	rep, err := h.service.SyncAll(c.Context(), products)
	if err != nil {
		l.Error("sync run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusOK
	if rep.Failed() {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(rep)
}

// HandlePreview compiles and validates one product without remote writes.
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	product := c.Params("product")

	orders, err := h.service.Preview(c.Context(), product)
	if err != nil {
		l.Error("preview failed", zap.String("product", product), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"product": product,
		"orders":  orders,
	})
}
