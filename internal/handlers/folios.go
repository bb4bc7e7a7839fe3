package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"pickings/internal/apperrors"
	"pickings/internal/importer"
	"pickings/internal/jobs"
	"pickings/internal/logging"
	"pickings/internal/models"
	"pickings/internal/services"
)

// FolioHandler serves the folio registry.
type FolioHandler struct {
	folios   *services.FolioRegistry
	details  *services.DetailLedger
	enqueuer jobs.Enqueuer
}

// NewFolioHandler creates a folio handler. enqueuer may be nil, in which
// case imports always run inline.
func NewFolioHandler(folios *services.FolioRegistry, details *services.DetailLedger, enqueuer jobs.Enqueuer) *FolioHandler {
	return &FolioHandler{folios: folios, details: details, enqueuer: enqueuer}
}

// List handles GET /api/folios?status=A,B&assignee=X&q=text
func (h *FolioHandler) List(c *fiber.Ctx) error {
	folios, err := h.folios.List(c.UserContext())
	if err != nil {
		return sendError(c, err, []models.Folio{})
	}
	filtered := services.Filter(folios, services.FolioFilter{
		Statuses:  splitQuery(c.Query("status")),
		Assignees: splitQuery(c.Query("assignee")),
		Search:    c.Query("q"),
	})
	return SendOK(c, fiber.StatusOK, "", filtered)
}

// Get handles GET /api/folios/:folio
func (h *FolioHandler) Get(c *fiber.Ctx) error {
	folio, err := h.folios.Get(c.UserContext(), c.Params("folio"))
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "", folio)
}

// Details handles GET /api/folios/:folio/details
func (h *FolioHandler) Details(c *fiber.Ctx) error {
	details, err := h.details.ListByFolio(c.UserContext(), c.Params("folio"))
	if err != nil {
		return sendError(c, err, []models.Detail{})
	}
	return SendOK(c, fiber.StatusOK, "", fiber.Map{
		"details": details,
		"count":   len(details),
	})
}

type statusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

// UpdateStatus handles PUT /api/folios/:folio/status
func (h *FolioHandler) UpdateStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	actor, err := actorOf(c.UserContext(), req.Actor)
	if err != nil {
		return err
	}
	folio := c.Params("folio")
	if err := h.folios.UpdateStatus(c.UserContext(), folio, req.Status, actor); err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Status updated to "+strings.TrimSpace(req.Status), nil)
}

type assigneeRequest struct {
	Assignee string `json:"assignee"`
	Actor    string `json:"actor"`
}

// Reassign handles PUT /api/folios/:folio/assignee
func (h *FolioHandler) Reassign(c *fiber.Ctx) error {
	var req assigneeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	actor, err := actorOf(c.UserContext(), req.Actor)
	if err != nil {
		return err
	}
	if err := h.folios.Reassign(c.UserContext(), c.Params("folio"), req.Assignee, actor); err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Folio reassigned to "+req.Assignee, nil)
}

type documentRequest struct {
	Code string `json:"code"`
}

// AddDocument handles POST /api/folios/:folio/documents
func (h *FolioHandler) AddDocument(c *fiber.Ctx) error {
	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("Invalid request body")
	}
	folio, err := h.folios.IncrementDocCount(c.UserContext(), c.Params("folio"), req.Code)
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, "Document "+strings.TrimSpace(req.Code)+" received", folio)
}

// Import handles POST /api/folios/import with a multipart "file" field.
// With ?async=true the parsed file is queued for the worker.
func (h *FolioHandler) Import(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("A spreadsheet file is required in the \"file\" field")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest("Unable to read uploaded file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return badRequest("Unable to read uploaded file")
	}

	sheet, err := importer.Parse(data)
	if err != nil {
		return SendError(c, apperrors.Newf(apperrors.ErrInvalidFormat, "Unable to read spreadsheet: %v", err))
	}

	if !sheet.HasColumn(models.ColFolio) {
		return SendError(c, apperrors.Newf(apperrors.ErrInvalidFormat, "Missing required columns in Excel: [%s]", models.ColFolio))
	}

	if c.QueryBool("async") && h.enqueuer != nil {
		jobID, err := jobs.EnqueueImport(c.UserContext(), h.enqueuer, sheet, importer.Checksum(data), fh.Filename)
		if err != nil {
			return SendError(c, err)
		}
		return SendOK(c, fiber.StatusAccepted, "Import queued.", fiber.Map{"job_id": jobID})
	}

	res, err := h.folios.Import(c.UserContext(), sheet)
	if err != nil {
		return SendError(c, err)
	}
	return SendOK(c, fiber.StatusOK, res.Message(), res)
}

// actorOf prefers the actor named in the body over the one carried by the
// request headers.
func actorOf(ctx context.Context, actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = logging.GetActor(ctx)
	}
	if actor == "" {
		return "", badRequest("actor is required")
	}
	return actor, nil
}

func splitQuery(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
