package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loandocs/internal/model"
	"loandocs/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// BackupFunc snapshots the database and returns the written file path.
type BackupFunc func(ctx context.Context, label string) (string, error)

// Routes holds what RegisterRoutes wires. Backup and Gatherer are optional.
type Routes struct {
	Pinger   Pinger
	Docs     service.DocumentService
	Backup   BackupFunc
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, r Routes) {
	app.Get("/health", HealthCheck(r.Pinger))
	app.Get("/healthz", LivenessProbe())

	if r.Gatherer != nil {
		app.Get("/metrics", Metrics(r.Gatherer))
	}

	app.Post("/documents", CreateDocument(r.Docs))
	app.Post("/documents/bulk", BulkCreateDocuments(r.Docs))
	app.Get("/documents/:id", GetDocument(r.Docs))
	app.Patch("/documents/:id", UpdateDocument(r.Docs))
	app.Delete("/documents/:id", DeleteDocument(r.Docs))

	app.Get("/loans/:loanId/documents", ListLoanDocuments(r.Docs))
	app.Get("/loans/:loanId/documents/count", CountLoanDocuments(r.Docs))
	app.Get("/loans/:loanId/stats", LoanStats(r.Docs))
	app.Post("/loans/:loanId/transfer", TransferLoanDocuments(r.Docs))

	if r.Backup != nil {
		app.Post("/admin/backups", CreateBackup(r.Backup))
	}
}

// HealthCheck pings the store with a short deadline.
func HealthCheck(p Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if p == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Metrics exposes g in the Prometheus text format.
func Metrics(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

func CreateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.CreateDocumentRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		doc, err := svc.Create(c.UserContext(), req)
		if err != nil {
			return writeServiceError(c, err)
		}
		doc.Content = ""
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

func BulkCreateDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var reqs []service.CreateDocumentRequest
		if err := c.BodyParser(&reqs); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		n, err := svc.BulkCreate(c.UserContext(), reqs)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"inserted": n})
	}
}

// GetDocument returns one document; content is included with ?include_content=true.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		doc, err := svc.Get(c.UserContext(), c.Params("id"), c.QueryBool("include_content", false))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

func UpdateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var patch model.DocumentPatch
		if err := c.BodyParser(&patch); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		patch.ID = c.Params("id")

		doc, err := svc.Update(c.UserContext(), patch)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func ListLoanDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		loanID := c.Params("loanId")
		docs, err := svc.ListForLoan(c.UserContext(), loanID, c.QueryBool("include_content", false))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"loan_id": loanID, "data": docs, "total": len(docs)})
	}
}

func CountLoanDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		loanID := c.Params("loanId")
		n, err := svc.CountForLoan(c.UserContext(), loanID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"loan_id": loanID, "count": n})
	}
}

func LoanStats(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := svc.Stats(c.UserContext(), c.Params("loanId"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(stats)
	}
}

type transferRequest struct {
	ToLoanID string `json:"to_loan_id"`
}

// TransferLoanDocuments re-files the path loan's documents under to_loan_id.
func TransferLoanDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req transferRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		from := c.Params("loanId")
		n, err := svc.TransferToLoan(c.UserContext(), from, req.ToLoanID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"from_loan_id": from, "to_loan_id": req.ToLoanID, "moved": n})
	}
}

type backupRequest struct {
	Label string `json:"label"`
}

func CreateBackup(backup BackupFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req backupRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
			}
		}
		path, err := backup(c.UserContext(), req.Label)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"path": path})
	}
}
