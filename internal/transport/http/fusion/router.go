package fusionhttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"
	"bagbot/internal/store/gormstore"
	"bagbot/internal/store/statslog"
)

const maxBatchSize = 256

// Fuser 由 fusion.Service 实现。
type Fuser interface {
	Fuse(ctx context.Context, req fusion.Request) (fusion.FusionDecision, error)
	FuseBatch(ctx context.Context, reqs []fusion.Request) ([]fusion.BatchResult, error)
	ReportRejected(ctx context.Context, req fusion.Request, err error)
	Statistics() fusion.State
	Reset()
	Config() fusion.Config
	Rules() fusion.RuleSet
}

// DecisionReader 审计库查询，gormstore.GormStore 实现。
type DecisionReader interface {
	GetDecision(ctx context.Context, id string) (fusion.FusionDecision, bool, error)
	ListDecisions(ctx context.Context, q gormstore.DecisionQuery) ([]fusion.FusionDecision, error)
	CountDecisions(ctx context.Context, q gormstore.DecisionQuery) (int, error)
}

// HistoryReader 统计快照查询，statslog.StatsStore 实现。
type HistoryReader interface {
	History(ctx context.Context, since time.Time, limit int) ([]statslog.Snapshot, error)
}

// Router 暴露 /api/fusion 下的接口。
type Router struct {
	fusion     Fuser
	decisions  DecisionReader
	history    HistoryReader
	allowReset bool
}

func NewRouter(f Fuser, decisions DecisionReader, history HistoryReader, allowReset bool) *Router {
	return &Router{fusion: f, decisions: decisions, history: history, allowReset: allowReset}
}

// Register 将路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/decide", r.handleDecide)
	group.POST("/decide/batch", r.handleDecideBatch)
	group.GET("/stats", r.handleStats)
	group.GET("/stats/history", r.handleStatsHistory)
	group.GET("/decisions", r.handleDecisions)
	group.GET("/decisions/:id", r.handleDecisionByID)
	group.GET("/config", r.handleConfig)
	group.GET("/rules", r.handleRules)
	if r.allowReset {
		group.POST("/reset", r.handleReset)
	}
}

func (r *Router) handleDecide(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := fusion.DecodeRequest(body)
	if err != nil {
		r.respondInvalid(c, req, err)
		return
	}
	d, err := r.fusion.Fuse(c.Request.Context(), req)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type batchItem struct {
	Index    int                    `json:"index"`
	Decision *fusion.FusionDecision `json:"decision,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Issues   []fusion.FieldIssue    `json:"issues,omitempty"`
}

func (r *Router) handleDecideBatch(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a json array of requests"})
		return
	}
	raws := gjson.ParseBytes(body).Array()
	if len(raws) > maxBatchSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "batch too large", "max": maxBatchSize})
		return
	}
	items := make([]batchItem, len(raws))
	var reqs []fusion.Request
	var slots []int
	for i, raw := range raws {
		items[i].Index = i
		req, err := fusion.DecodeRequest([]byte(raw.Raw))
		if err != nil {
			r.fusion.ReportRejected(c.Request.Context(), req, err)
			items[i].Error, items[i].Issues = describeError(err)
			continue
		}
		reqs = append(reqs, req)
		slots = append(slots, i)
	}
	results, err := r.fusion.FuseBatch(c.Request.Context(), reqs)
	if err != nil {
		r.respondError(c, err)
		return
	}
	for j, res := range results {
		idx := slots[j]
		if res.Err != nil {
			items[idx].Error, items[idx].Issues = describeError(res.Err)
			continue
		}
		d := res.Decision
		items[idx].Decision = &d
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.fusion.Statistics())
}

func (r *Router) handleStatsHistory(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "统计快照未启用"})
		return
	}
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = ts
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snaps, err := r.history.History(c.Request.Context(), since, limit)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

func (r *Router) handleReset(c *gin.Context) {
	r.fusion.Reset()
	c.JSON(http.StatusOK, r.fusion.Statistics())
}

func (r *Router) handleDecisions(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计库未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	cmd := fusion.Command(strings.ToUpper(strings.TrimSpace(c.Query("command"))))
	if cmd != fusion.CommandNone && !cmd.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command " + string(cmd)})
		return
	}
	q := gormstore.DecisionQuery{
		Symbol:  strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Command: cmd,
		Limit:   limit,
		Offset:  offset,
	}
	ctx := c.Request.Context()
	list, err := r.decisions.ListDecisions(ctx, q)
	if err != nil {
		r.respondError(c, err)
		return
	}
	total, err := r.decisions.CountDecisions(ctx, q)
	if err != nil {
		r.respondError(c, err)
		return
	}
	if list == nil {
		list = []fusion.FusionDecision{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": list, "total": total, "offset": offset})
}

func (r *Router) handleDecisionByID(c *gin.Context) {
	if r.decisions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "审计库未启用"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	d, ok, err := r.decisions.GetDecision(c.Request.Context(), id)
	if err != nil {
		r.respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (r *Router) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.fusion.Config())
}

func (r *Router) handleRules(c *gin.Context) {
	rules := r.fusion.Rules()
	out := make([]gin.H, 0, len(rules))
	for _, rule := range rules {
		out = append(out, gin.H{"name": rule.Name, "priority": rule.Priority})
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (r *Router) respondInvalid(c *gin.Context, req fusion.Request, err error) {
	r.fusion.ReportRejected(c.Request.Context(), req, err)
	r.respondError(c, err)
}

func (r *Router) respondError(c *gin.Context, err error) {
	var verr *fusion.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request", "issues": verr.Issues})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	logger.Errorf("fusion http %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func describeError(err error) (string, []fusion.FieldIssue) {
	var verr *fusion.ValidationError
	if errors.As(err, &verr) {
		return "invalid request", verr.Issues
	}
	return err.Error(), nil
}
