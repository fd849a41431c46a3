package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kawase/internal/analysis/indicator"
	"kawase/internal/backtest"
	"kawase/internal/logger"
	"kawase/internal/market"
	"kawase/internal/notify"
	"kawase/internal/store"
)

// Server 提供 Gin 接口：按需背离检查、回测任务、通知设置管理。
type Server struct {
	addr     string
	source   market.Source
	cache    *store.CandleCache
	nstore   store.NotificationStore
	svc      *backtest.Service
	analysis indicator.Settings
	router   *gin.Engine
}

type Config struct {
	Addr     string
	Source   market.Source
	Cache    *store.CandleCache
	Store    store.NotificationStore
	Backtest *backtest.Service
	Analysis indicator.Settings
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, errors.New("market source 不能为空")
	}
	if cfg.Store == nil {
		return nil, errors.New("notification store 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9880"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		source:   cfg.Source,
		cache:    cfg.Cache,
		nstore:   cfg.Store,
		svc:      cfg.Backtest,
		analysis: cfg.Analysis.WithDefaults(),
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.POST("/divergence/check", s.handleDivergenceCheck)
	api.GET("/klines", s.handleKlines)

	bt := api.Group("/backtest")
	bt.POST("/run", s.handleBacktestRun)
	bt.GET("/run/:id", s.handleBacktestStatus)
	bt.GET("/jobs", s.handleBacktestJobs)
	bt.GET("/report/:id", s.handleBacktestReport)
	bt.GET("/export/:id", s.handleBacktestExport)
	bt.GET("/chart/:id", s.handleBacktestChart)
	bt.GET("/chart/:id/png", s.handleBacktestChartPNG)

	nt := api.Group("/notify")
	nt.GET("/settings/:user", s.handleGetSettings)
	nt.PUT("/settings/:user", s.handlePutSettings)
	nt.GET("/logs/:user", s.handleLogs)
}

// handleDivergenceCheck 按需对单个 (symbol, interval) 做一次完整分析。
func (s *Server) handleDivergenceCheck(c *gin.Context) {
	var req struct {
		Symbol   string              `json:"symbol" binding:"required"`
		Interval string              `json:"interval" binding:"required"`
		Limit    int                 `json:"limit"`
		Analysis *indicator.Settings `json:"analysis"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 200
	}
	cfg := s.analysis
	if req.Analysis != nil {
		cfg = req.Analysis.WithDefaults()
	}

	candles, err := s.source.FetchHistory(c.Request.Context(), req.Symbol, req.Interval, req.Limit)
	if err != nil {
		logger.Errorf("[http] 拉取 %s %s 行情失败: %v", req.Symbol, req.Interval, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	report, err := indicator.Analyze(candles, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.cache != nil {
		_ = s.cache.Set(c.Request.Context(), req.Symbol, req.Interval, candles)
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":      req.Symbol,
		"interval":    req.Interval,
		"data_count":  len(candles),
		"divergences": report.Divergences,
		"summary":     report.Summary,
		"context":     indicator.ComputeSnapshot(candles),
	})
}

func (s *Server) handleKlines(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if symbol == "" || interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/interval 必填"})
		return
	}
	if s.cache == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "kline cache disabled"})
		return
	}
	candles, err := s.cache.Get(c.Request.Context(), symbol, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

func (s *Server) handleBacktestRun(c *gin.Context) {
	if s.svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "backtest service disabled"})
		return
	}
	var req backtest.RunParams
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.svc.SubmitRun(context.Background(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleBacktestStatus(c *gin.Context) {
	job, ok := s.jobFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleBacktestJobs(c *gin.Context) {
	if s.svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "backtest service disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": s.svc.JobsSnapshot()})
}

func (s *Server) handleBacktestReport(c *gin.Context) {
	job, ok := s.jobFor(c)
	if !ok {
		return
	}
	if job.Status != backtest.JobStatusDone || job.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job not finished", "status": job.Status})
		return
	}
	c.String(http.StatusOK, backtest.FormatReport(job.Params.Symbol, *job.Result))
}

// handleBacktestExport 把已完成任务的交易明细导出为 CSV。
func (s *Server) handleBacktestExport(c *gin.Context) {
	job, ok := s.jobFor(c)
	if !ok {
		return
	}
	if job.Status != backtest.JobStatusDone || job.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job not finished", "status": job.Status})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=trades_"+job.ID+".csv")
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.String(http.StatusOK, backtest.TradesCSV(job.Result.Trades, backtest.PrecisionRaw))
}

func (s *Server) handleBacktestChart(c *gin.Context) {
	job, candles, report, ok := s.chartData(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := backtest.RenderChart(c.Writer, job.Params.Symbol, candles, report.RSI, *job.Result, job.Params.Trading.InitialBalance); err != nil {
		logger.Errorf("[http] 渲染图表失败: %v", err)
	}
}

func (s *Server) handleBacktestChartPNG(c *gin.Context) {
	job, candles, report, ok := s.chartData(c)
	if !ok {
		return
	}
	dir, err := os.MkdirTemp("", "kawase-chart-")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer os.RemoveAll(dir)
	htmlPath := filepath.Join(dir, "chart.html")
	pngPath := filepath.Join(dir, "chart.png")
	if err := backtest.RenderChartFile(htmlPath, job.Params.Symbol, candles, report.RSI, *job.Result, job.Params.Trading.InitialBalance); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := backtest.SnapshotPNG(c.Request.Context(), htmlPath, pngPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(pngPath)
}

// chartData 取回任务并重放一次行情+分析，图表需要完整的 K 线与 RSI 序列。
func (s *Server) chartData(c *gin.Context) (backtest.RunJob, []market.Candle, indicator.Report, bool) {
	job, ok := s.jobFor(c)
	if !ok {
		return backtest.RunJob{}, nil, indicator.Report{}, false
	}
	if job.Status != backtest.JobStatusDone || job.Result == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job not finished", "status": job.Status})
		return backtest.RunJob{}, nil, indicator.Report{}, false
	}
	candles, err := s.source.FetchHistory(c.Request.Context(), job.Params.Symbol, job.Params.Interval, job.Params.Limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return backtest.RunJob{}, nil, indicator.Report{}, false
	}
	report, err := indicator.Analyze(candles, job.Params.Analysis)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return backtest.RunJob{}, nil, indicator.Report{}, false
	}
	return job, candles, report, true
}

func (s *Server) jobFor(c *gin.Context) (backtest.RunJob, bool) {
	if s.svc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "backtest service disabled"})
		return backtest.RunJob{}, false
	}
	job, ok := s.svc.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return backtest.RunJob{}, false
	}
	return job, true
}

func (s *Server) handleGetSettings(c *gin.Context) {
	userID := c.Param("user")
	settings, ok, err := s.nstore.LoadSettings(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "settings not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (s *Server) handlePutSettings(c *gin.Context) {
	userID := c.Param("user")
	var settings notify.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.nstore.SaveSettings(c.Request.Context(), userID, settings.WithDefaults()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings.WithDefaults()})
}

func (s *Server) handleLogs(c *gin.Context) {
	userID := c.Param("user")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 非法"})
		return
	}
	logs, err := s.nstore.RecentLogs(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("HTTP 服务已启动: %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler 暴露路由供测试使用。
func (s *Server) Handler() http.Handler { return s.router }
