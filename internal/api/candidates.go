package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

const pdfContentType = "application/pdf"

type uploadResponse struct {
	Message  string `json:"message"`
	FileName string `json:"fileName"`
	EntityID int64  `json:"entityId"`
	Status   string `json:"status"`
}

func (s *Server) uploadCV(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "cannot process empty file")
	}
	contentType := strings.TrimSpace(strings.Split(fh.Header.Get(fiber.HeaderContentType), ";")[0])
	if !strings.EqualFold(contentType, pdfContentType) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "invalid file type, please upload a PDF file")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	cand, err := s.deps.Ingestor.Submit(c.UserContext(), fh.Filename, f)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(uploadResponse{
		Message:  "CV upload accepted. Parsing initiated.",
		FileName: fh.Filename,
		EntityID: cand.ID,
		Status:   string(cand.Status),
	})
}

func (s *Server) listCandidates(c *fiber.Ctx) error {
	filter := store.CandidateFilter{Status: model.CandidateStatus(c.Query("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown candidate status "+string(filter.Status))
	}
	candidates, err := s.deps.Store.ListCandidates(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(candidates)
}

func (s *Server) getCandidate(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cand, err := s.deps.Store.GetCandidate(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(cand)
}

// getParsedCV returns the extracted CV as is once parsing finished, a
// pending marker while it runs, and the stored diagnostic when it failed.
func (s *Server) getParsedCV(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cand, err := s.deps.Store.GetCandidate(c.UserContext(), id)
	if err != nil {
		return err
	}

	switch {
	case cand.IsParsed():
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		return c.SendString(cand.ExtractedCVJSON)
	case cand.Status == model.CandidateErrorParsing:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message":    "parsing failed for candidate",
			"status":     cand.Status,
			"diagnostic": cand.ExtractedCVJSON,
		})
	default:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"message": "parsing not complete",
			"status":  cand.Status,
		})
	}
}
