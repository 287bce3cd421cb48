// Package statushttp serves a read-only view of a running agent.
package statushttp

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"opsagent/internal/agent"
	"opsagent/internal/logsource"
	"opsagent/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	defaultStepLimit = 100
	maxStepLimit     = 1000
	maxExtractBody   = 4 << 20
)

type Router struct {
	agent *agent.Agent
	steps store.StepRepository
}

func NewRouter(a *agent.Agent, steps store.StepRepository) *Router {
	return &Router{agent: a, steps: steps}
}

// Register mounts the endpoints under group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/policy", r.handlePolicy)
	group.GET("/policy/table", r.handlePolicyTable)
	group.GET("/actions", r.handleActions)
	group.GET("/steps", r.handleSteps)
	group.GET("/runs", r.handleRuns)
	group.POST("/extract", r.handleExtract)
}

func (r *Router) handlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, r.agent.Summary())
}

func (r *Router) handlePolicyTable(c *gin.Context) {
	table := r.agent.Table()
	entries := table.Entries()
	if entries == nil {
		entries = []agent.Entry{}
	}
	c.JSON(http.StatusOK, TableView{
		Hyperparameters: r.agent.Hyperparameters(),
		States:          len(table),
		Entries:         entries,
	})
}

func (r *Router) handleActions(c *gin.Context) {
	cat := r.agent.Catalog()
	out := make([]ActionView, 0, cat.Size())
	for _, a := range cat.Actions() {
		out = append(out, ActionView{
			Name:       a.Name,
			Command:    a.Command,
			RiskLevel:  a.RiskLevel,
			Category:   cat.Category(a.Name),
			Normalized: cat.NormalizedName(a.Name),
			Restart:    a.Name == cat.RestartAction(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"app": cat.App(), "actions": out, "taxonomy": cat.Taxonomy()})
}

func (r *Router) handleSteps(c *gin.Context) {
	if r.steps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "step store disabled"})
		return
	}
	ctx := c.Request.Context()
	if runID := strings.TrimSpace(c.Query("run_id")); runID != "" {
		rows, err := r.steps.ListRun(ctx, runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views := make([]StepView, 0, len(rows))
		for _, row := range rows {
			views = append(views, stepView(row))
		}
		c.JSON(http.StatusOK, gin.H{"run_id": runID, "steps": views})
		return
	}
	limit := parseLimit(c.Query("limit"))
	rows, err := r.steps.ListRecent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]StepView, 0, len(rows))
	for _, row := range rows {
		views = append(views, stepView(row))
	}
	c.JSON(http.StatusOK, gin.H{"limit": limit, "steps": views})
}

func (r *Router) handleRuns(c *gin.Context) {
	if r.steps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "step store disabled"})
		return
	}
	rows, err := r.steps.ListRuns(c.Request.Context(), parseLimit(c.Query("limit")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]RunView, 0, len(rows))
	for _, row := range rows {
		views = append(views, runView(row))
	}
	c.JSON(http.StatusOK, gin.H{"runs": views})
}

// handleExtract classifies the posted lines without touching the agent's state.
func (r *Router) handleExtract(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxExtractBody)
	var lines []string
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		got, err := logsource.ReadLines(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lines = got
	} else {
		var req ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lines = req.Lines
	}
	snap := r.agent.Extractor().Extract(lines)
	c.JSON(http.StatusOK, gin.H{
		"state":     snap,
		"state_key": snap.Key(),
		"valid":     r.agent.Catalog().ValidActions(snap),
	})
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		return defaultStepLimit
	}
	if limit > maxStepLimit {
		return maxStepLimit
	}
	return limit
}
