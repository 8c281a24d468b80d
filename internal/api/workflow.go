package api

import (
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) matchAll(c *fiber.Ctx) error {
	jobID, err := queryID(c, "jobId")
	if err != nil {
		return err
	}
	out, err := s.deps.Matcher.MatchAll(c.UserContext(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":   fmt.Sprintf("batch matching finished for job %d", jobID),
		"runId":     out.RunID.String(),
		"succeeded": out.Succeeded,
		"failed":    out.Failed,
	})
}

func (s *Server) shortlist(c *fiber.Ctx) error {
	jobID, err := queryID(c, "jobId")
	if err != nil {
		return err
	}

	var threshold *float64
	if raw := c.Query("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid threshold "+strconv.Quote(raw))
		}
		threshold = &v
	}

	apps, err := s.deps.Matcher.Shortlist(c.UserContext(), jobID, threshold)
	if err != nil {
		return err
	}
	views, err := newViewer(s.deps.Store).views(c.UserContext(), apps)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":          fmt.Sprintf("shortlisting completed for job %d", jobID),
		"shortlistedCount": len(apps),
		"applications":     views,
	})
}

func (s *Server) sendInterviews(c *fiber.Ctx) error {
	jobID, err := queryID(c, "jobId")
	if err != nil {
		return err
	}
	res, err := s.deps.Inviter.SendInvitations(c.UserContext(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":              fmt.Sprintf("interview invitations processed for job %d", jobID),
		"invitationsProcessed": len(res.Sent),
		"failed":               res.Failed,
	})
}
