package controllers

import (
	"github.com/gin-gonic/gin"

	"trashbin/jobs"
	"trashbin/models"
	"trashbin/utils"
)

// PurgeController is the admin view of the purge queue.
type PurgeController struct {
	queue     *jobs.Queue
	scheduler *jobs.Scheduler
}

func NewPurgeController(queue *jobs.Queue, scheduler *jobs.Scheduler) *PurgeController {
	return &PurgeController{queue: queue, scheduler: scheduler}
}

func (pc *PurgeController) ListTasks(c *gin.Context) {
	status := models.TaskStatus(c.Query("status"))
	switch status {
	case "", models.TaskStatusPending, models.TaskStatusActive:
	default:
		utils.BadRequestResponse(c, "Invalid status (expected pending or active)", nil)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	tasks, err := pc.queue.List(ctx, status, queryInt(c, "limit", 100))
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list purge tasks", nil)
		return
	}
	utils.SuccessResponse(c, "Purge tasks retrieved", tasks)
}

func (pc *PurgeController) ListFailures(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	failed, err := pc.queue.Failures(ctx, queryInt(c, "limit", 100))
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list purge failures", nil)
		return
	}
	utils.SuccessResponse(c, "Purge failures retrieved", failed)
}

// TriggerScan queues an out-of-schedule scan. At most one scan is queued
// at a time.
func (pc *PurgeController) TriggerScan(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	created, err := pc.scheduler.TriggerScan(ctx)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to queue scan", nil)
		return
	}
	resp := gin.H{"queued": created}
	if next := pc.scheduler.NextRun(); next != nil {
		resp["next_scheduled_run"] = next
	}
	utils.SuccessResponse(c, "Scan requested", resp)
}
