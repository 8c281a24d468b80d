package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) loadJobs(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "cannot process empty file")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	jobs, err := s.deps.Jobs.LoadFromCSV(c.UserContext(), f)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": fmt.Sprintf("loaded %d job descriptions", len(jobs)),
		"jobs":    jobs,
	})
}

func (s *Server) listJobs(c *fiber.Ctx) error {
	jobs, err := s.deps.Store.ListJobs(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(jobs)
}

func (s *Server) getJob(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	job, err := s.deps.Store.GetJob(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(job)
}

func (s *Server) summarizeJob(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	job, err := s.deps.Jobs.Summarize(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(job)
}
